// Package llmclient implements the Agent client (spec §4.2): invoking one of
// a fixed set of language-model roles, in streaming or one-shot mode, with
// per-role rate limiting. It sits on top of common/llm's provider-specific
// clients (openai-go and anthropic-sdk-go backed), generalizing their single
// hardcoded persona into the tagged variant `Agent` spec §9 calls for: no
// role is a subtype of any other, dispatch is by a role->config map.
package llmclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arclight-labs/maker/common/llm"
)

// Role is the tagged variant over agent kinds (spec §9 "Dynamic dispatch
// over agents"). No role subtypes another; dispatch is a map lookup.
type Role string

const (
	RolePreprocessor Role = "preprocessor"
	RolePlanner      Role = "planner"
	RoleCoder        Role = "coder"
	RoleReviewer     Role = "reviewer"
	RoleVoter        Role = "voter"
)

// Chunk is one piece of a streamed response. Err is set on the final chunk
// of a failed stream; per spec §4.2 a network or HTTP failure never panics
// or propagates as a Go error out of the stream, it is delivered as a chunk.
type Chunk struct {
	Content string
	Done    bool
	Err     error
}

// EndpointConfig is one role's backend binding: which client to use, which
// model, and how many concurrent in-flight requests that endpoint tolerates.
type EndpointConfig struct {
	Client         llm.AgentClient
	SemaphoreSize  int           // default 1, per spec §4.2
	CallTimeout    time.Duration // default 5min, per spec §5
}

// Registry is the per-agent endpoint/semaphore map spec §4.2/§9 describes.
// It is the sole dispatch point from Role to a concrete backend.
type Registry struct {
	mu        sync.Mutex
	endpoints map[Role]*EndpointConfig
	sems      map[Role]chan struct{}
}

// NewRegistry builds a Registry from a role->config map. Missing
// SemaphoreSize/CallTimeout default to 1 and 5 minutes respectively.
func NewRegistry(endpoints map[Role]EndpointConfig) *Registry {
	r := &Registry{
		endpoints: make(map[Role]*EndpointConfig, len(endpoints)),
		sems:      make(map[Role]chan struct{}, len(endpoints)),
	}
	for role, cfg := range endpoints {
		cfg := cfg
		if cfg.SemaphoreSize <= 0 {
			cfg.SemaphoreSize = 1
		}
		if cfg.CallTimeout <= 0 {
			cfg.CallTimeout = 5 * time.Minute
		}
		r.endpoints[role] = &cfg
		r.sems[role] = make(chan struct{}, cfg.SemaphoreSize)
	}
	return r
}

// Request is the provider-agnostic shape of one agent call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Response is a one-shot call's full result.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Call invokes role in one-shot mode: acquires the role's semaphore before
// any network call and releases it on completion or cancellation (spec
// §4.2), bounds the call to CallTimeout, and never returns a raw transport
// error — failures are wrapped as a CallError so the caller can decide
// in-band how to treat them, matching §4.2's "network error -> error
// marker, never an exception to the stream" for the one-shot case too.
func (r *Registry) Call(ctx context.Context, role Role, req Request) (*Response, error) {
	cfg, ok := r.endpoints[role]
	if !ok {
		return nil, fmt.Errorf("llmclient: no endpoint configured for role %q", role)
	}

	sem := r.sems[role]
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-sem }()

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	temp := req.Temperature
	agentReq := llm.AgentRequest{
		Messages: []llm.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	}

	resp, err := cfg.Client.ChatWithTools(callCtx, agentReq)
	if err != nil {
		return nil, &CallError{Role: role, Cause: err}
	}

	return &Response{
		Content:          resp.Content,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// Stream invokes role in streaming mode. The returned channel yields chunks
// in arrival order and is always closed by the producer; a failure appears
// as a single final chunk with Err set, never as a panic or an out-of-band
// error. Closing ctx (spec §5 "Cancellation") causes the upstream connection
// to close within one chunk boundary.
func (r *Registry) Stream(ctx context.Context, role Role, req Request) (<-chan Chunk, error) {
	cfg, ok := r.endpoints[role]
	if !ok {
		return nil, fmt.Errorf("llmclient: no endpoint configured for role %q", role)
	}

	out := make(chan Chunk, 8)
	sem := r.sems[role]

	go func() {
		defer close(out)

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out <- Chunk{Done: true, Err: ctx.Err()}
			return
		}
		defer func() { <-sem }()

		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()

		// common/llm's AgentClient is one-shot, so every role's reply arrives
		// as a single chunk holding the full content; there is no token-level
		// streaming.
		temp := req.Temperature
		resp, err := cfg.Client.ChatWithTools(callCtx, llm.AgentRequest{
			Messages: []llm.Message{
				{Role: "system", Content: req.SystemPrompt},
				{Role: "user", Content: req.UserPrompt},
			},
			MaxTokens:   req.MaxTokens,
			Temperature: &temp,
		})
		if err != nil {
			out <- Chunk{Done: true, Err: &CallError{Role: role, Cause: err}}
			return
		}

		select {
		case out <- Chunk{Content: resp.Content}:
		case <-callCtx.Done():
			out <- Chunk{Done: true, Err: callCtx.Err()}
			return
		}
		out <- Chunk{Done: true}
	}()

	return out, nil
}

// CallError wraps a role call failure so in-band handling can inspect which
// role failed without parsing the error string.
type CallError struct {
	Role  Role
	Cause error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llmclient: %s call failed: %v", e.Role, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }
