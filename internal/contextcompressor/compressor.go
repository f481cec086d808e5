// Package contextcompressor implements the per-task rolling conversation
// window with background summarisation of older turns (spec §4.5). It is
// grounded on the teacher's chars/4 token estimate (model.EstimateTokens,
// itself lifted from internal/brain/explore_tools.go's withTokenEstimate)
// and on internal/brain/planner.go's rolling-message handling, generalized
// from a single planner loop into a reusable, session-keyed component.
package contextcompressor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/model"
)

const defaultSummaryTruncateChars = 2000

// Config bounds one compressor instance. MaxContext and RecentWindow are
// token counts (chars/4 heuristic).
type Config struct {
	MaxContext       int
	RecentWindow     int
	SummaryChunkSize int // messages per summarisation chunk
}

// Summarizer invokes the preprocessor agent to condense a chunk of older
// messages into a short prefix, per spec §4.5.
type Summarizer interface {
	Summarize(ctx context.Context, messages []model.ConversationMessage, directive string) (string, error)
}

// agentSummarizer is the production Summarizer, backed by the preprocessor
// role through llmclient.Registry.
type agentSummarizer struct {
	registry *llmclient.Registry
}

// NewAgentSummarizer builds a Summarizer that calls the preprocessor agent.
func NewAgentSummarizer(registry *llmclient.Registry) Summarizer {
	return &agentSummarizer{registry: registry}
}

const defaultSummaryDirective = "Summarize the following conversation turns concisely, preserving any decisions, file paths, and open questions. Do not add commentary."

func (s *agentSummarizer) Summarize(ctx context.Context, messages []model.ConversationMessage, directive string) (string, error) {
	if directive == "" {
		directive = defaultSummaryDirective
	}

	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	resp, err := s.registry.Call(ctx, llmclient.RolePreprocessor, llmclient.Request{
		SystemPrompt: directive,
		UserPrompt:   sb.String(),
		Temperature:  0.2,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Compressor holds one task/session's rolling conversation state (spec §3
// "Context compressor state").
type Compressor struct {
	mu sync.Mutex

	cfg        Config
	summarizer Summarizer

	sessionID        string
	recent           []model.ConversationMessage
	compressedPrefix string
	compressedTokens int
	customDirective  string
}

// New creates an empty compressor for a session.
func New(sessionID string, cfg Config, summarizer Summarizer) *Compressor {
	if cfg.SummaryChunkSize <= 0 {
		cfg.SummaryChunkSize = 10
	}
	return &Compressor{
		cfg:        cfg,
		summarizer: summarizer,
		sessionID:  sessionID,
	}
}

// AddMessage appends a message with its estimated token count.
func (c *Compressor) AddMessage(role model.MessageRole, content string, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, model.ConversationMessage{
		Role:            role,
		Content:         content,
		Timestamp:       timestamp,
		EstimatedTokens: model.EstimateTokens(content),
	})
}

// SetCustomDirective overrides the default summarisation instruction for
// subsequent compressions of this session.
func (c *Compressor) SetCustomDirective(directive string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customDirective = directive
}

func (c *Compressor) recentTokens() int {
	total := 0
	for _, m := range c.recent {
		total += m.EstimatedTokens
	}
	return total
}

// CompressIfNeeded partitions recent into (older, kept-recent) once the
// total exceeds MaxContext, summarises older in chunks, and appends the
// summaries to the compressed prefix. Returns true if compression ran.
func (c *Compressor) CompressIfNeeded(ctx context.Context) (bool, error) {
	c.mu.Lock()
	total := c.recentTokens() + c.compressedTokens
	if total <= c.cfg.MaxContext {
		c.mu.Unlock()
		return false, nil
	}

	// Find the newest contiguous suffix fitting RecentWindow.
	keepFrom := len(c.recent)
	tokens := 0
	for i := len(c.recent) - 1; i >= 0; i-- {
		tokens += c.recent[i].EstimatedTokens
		if tokens > c.cfg.RecentWindow {
			break
		}
		keepFrom = i
	}

	older := append([]model.ConversationMessage(nil), c.recent[:keepFrom]...)
	kept := append([]model.ConversationMessage(nil), c.recent[keepFrom:]...)
	directive := c.customDirective
	chunkSize := c.cfg.SummaryChunkSize
	c.mu.Unlock()

	if len(older) == 0 {
		// Every recent message already fits RecentWindow, so the overage is
		// in the compressed prefix; nothing is summarised or truncated and
		// recent is left as it is.
		c.mu.Lock()
		c.recent = kept
		c.mu.Unlock()
		return true, nil
	}

	var summaries []string
	for i := 0; i < len(older); i += chunkSize {
		end := i + chunkSize
		if end > len(older) {
			end = len(older)
		}
		chunk := older[i:end]

		summary, err := c.summarizer.Summarize(ctx, chunk, directive)
		if err != nil {
			// Failure mode per spec §4.5: truncate rather than lose content.
			summary = truncateChunk(chunk, defaultSummaryTruncateChars)
		}
		summaries = append(summaries, summary)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compressedPrefix != "" {
		c.compressedPrefix += "\n---\n"
	}
	c.compressedPrefix += strings.Join(summaries, "\n---\n")
	c.compressedTokens = model.EstimateTokens(c.compressedPrefix)
	c.recent = kept
	return true, nil
}

func truncateChunk(chunk []model.ConversationMessage, maxChars int) string {
	var sb strings.Builder
	for _, m := range chunk {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	s := sb.String()
	if len(s) > maxChars {
		s = s[:maxChars]
	}
	return s
}

// GetContext ensures compression has run, then returns the assembled
// "[previous-summary]\n\n[recent]" context string (spec §4.5).
func (c *Compressor) GetContext(ctx context.Context) (string, error) {
	if _, err := c.CompressIfNeeded(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var recentText strings.Builder
	for _, m := range c.recent {
		recentText.WriteString(string(m.Role))
		recentText.WriteString(": ")
		recentText.WriteString(m.Content)
		recentText.WriteString("\n")
	}

	if c.compressedPrefix == "" {
		return recentText.String(), nil
	}
	return c.compressedPrefix + "\n\n" + recentText.String(), nil
}

// Stats reports the current token accounting, for spec §6's
// GET /api/context/{session} and the universal property
// "recent_tokens <= recent_window after any get_context call".
type Stats struct {
	RecentTokens     int
	CompressedTokens int
}

func (c *Compressor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{RecentTokens: c.recentTokens(), CompressedTokens: c.compressedTokens}
}

// State is the serialisable form persisted to the KV store keyed by session
// id (spec §4.5 "State is serialisable ... restored verbatim").
type State struct {
	SessionID        string                       `json:"session_id"`
	Recent           []model.ConversationMessage  `json:"recent"`
	CompressedPrefix string                       `json:"compressed_prefix"`
	CompressedTokens int                          `json:"compressed_tokens"`
	CustomDirective  string                       `json:"custom_directive,omitempty"`
}

// ToState snapshots the compressor for persistence.
func (c *Compressor) ToState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		SessionID:        c.sessionID,
		Recent:           append([]model.ConversationMessage(nil), c.recent...),
		CompressedPrefix: c.compressedPrefix,
		CompressedTokens: c.compressedTokens,
		CustomDirective:  c.customDirective,
	}
}

// FromState restores a compressor verbatim from a prior snapshot.
func FromState(state State, cfg Config, summarizer Summarizer) *Compressor {
	c := New(state.SessionID, cfg, summarizer)
	c.recent = append([]model.ConversationMessage(nil), state.Recent...)
	c.compressedPrefix = state.CompressedPrefix
	c.compressedTokens = state.CompressedTokens
	c.customDirective = state.CustomDirective
	return c
}
