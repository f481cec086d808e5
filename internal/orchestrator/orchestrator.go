// Package orchestrator implements the workflow state machine (spec §4.10):
// pending -> preprocessing -> classification -> (question | simple_code |
// complex_code -> planning -> coding -> reviewing) -> complete | failed, with
// an awaiting-clarification side state. It is the one component that wires
// every other one together: the agent registry (internal/llmclient), the
// code tools (internal/codeservice), the hierarchical memory network
// (internal/hmn), the context compressor (internal/contextcompressor), the
// skill store (internal/skillstore), the progress/session manager
// (internal/progress), the checkpoint manager (internal/checkpoint) and the
// MAKER candidate/vote engine (internal/maker).
//
// Structurally this is a per-run cycle loop that persists state at phase
// boundaries and streams human-readable progress lines alongside model
// output, in the same style the teacher used for its own engagement loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arclight-labs/maker/common/id"
	"github.com/arclight-labs/maker/common/logger"
	"github.com/arclight-labs/maker/internal/checkpoint"
	"github.com/arclight-labs/maker/internal/codeservice"
	"github.com/arclight-labs/maker/internal/contextcompressor"
	"github.com/arclight-labs/maker/internal/hmn"
	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/maker"
	"github.com/arclight-labs/maker/internal/model"
	"github.com/arclight-labs/maker/internal/progress"
	"github.com/arclight-labs/maker/internal/skillstore"
)

// ReviewMode selects how the reviewing phase is carried out (spec §4.10).
type ReviewMode string

const (
	ReviewModeHigh ReviewMode = "high" // dedicated reviewer agent
	ReviewModeLow  ReviewMode = "low"  // planner, asked to reflect
)

// Config tunes the phase machine's thresholds, all named directly in spec
// §4.9/§4.10.
type Config struct {
	MaxIterations          int
	NumCandidates          int
	VoteK                  int
	ReviewMode             ReviewMode
	EnableEEPlanner        bool
	SkillAnnounceThreshold float64 // 0.85
	HMNTopK                int

	MaxContextTokens int
	RecentWindow     int
	SummaryChunkSize int
}

// DefaultConfig mirrors the defaults spec.md and SPEC_FULL.md name inline
// (max_iterations default 3, skill threshold 0.85, agent call timeout 5m
// lives in llmclient instead).
func DefaultConfig() Config {
	return Config{
		MaxIterations:          3,
		NumCandidates:          5,
		VoteK:                  3,
		ReviewMode:             ReviewModeHigh,
		EnableEEPlanner:        false,
		SkillAnnounceThreshold: 0.85,
		HMNTopK:                5,
		MaxContextTokens:       32000,
		RecentWindow:           8000,
		SummaryChunkSize:       10,
	}
}

// EEPlanner is the pluggable "EE-planner" hook spec §4.10 contrasts with the
// standard planner: "If the EE-planner is enabled and succeeds, its output is
// a list of subtasks ...; on EE-planner failure, the orchestrator falls back
// to the standard planner." No concrete EE-planner exists in this system
// (see DESIGN.md); the interface exists so one can be wired in without
// touching the phase machine.
type EEPlanner interface {
	Plan(ctx context.Context, task *model.Task, planCtx PlanContext) (*model.Plan, error)
}

// Deps collects every component the orchestrator wires together. All fields
// are required except EEPlanner, Embed and Summarizer, which have working
// zero-value behaviour (no EE-planner, Jaccard similarity, agent-backed
// summariser respectively).
type Deps struct {
	KV            kv.Store
	Agents        *llmclient.Registry
	Code          *codeservice.Service
	Graph         *hmn.Network
	Skills        *skillstore.Store
	SkillRegistry *skillstore.Registry
	Embed         skillstore.EmbeddingBackend
	Progress      *progress.Tracker
	Checkpoints   *checkpoint.Manager
	Maker         *maker.Engine
	EEPlanner     EEPlanner
	Summarizer    contextcompressor.Summarizer
}

// EventType classifies a streamed orchestrator event.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventChunk         EventType = "chunk"
	EventClarification EventType = "clarification"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event is one item on an orchestrator run's output stream. HTTP handlers
// frame these as SSE per spec §6; CLI or test callers can just range over
// the channel.
type Event struct {
	Type    EventType    `json:"type"`
	Line    string       `json:"line,omitempty"`
	Chunk   string       `json:"chunk,omitempty"`
	Task    *model.Task  `json:"task,omitempty"`
	Done    bool         `json:"done,omitempty"`
}

// RunRequest is POST /api/workflow's body, minus the streaming flag which is
// an HTTP-layer concern.
type RunRequest struct {
	Input     string
	TaskID    string
	SessionID string
	Resume    bool
}

// Orchestrator runs the phase machine for one or many tasks, serialising all
// durable state through KV. It holds no per-task goroutine state beyond the
// session-keyed context compressors, which live for the process lifetime.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	compressors map[string]*contextcompressor.Compressor
}

// New builds an Orchestrator. Deps.Summarizer defaults to an agent-backed
// summariser over Deps.Agents when nil.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Summarizer == nil {
		deps.Summarizer = contextcompressor.NewAgentSummarizer(deps.Agents)
	}
	return &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		compressors: make(map[string]*contextcompressor.Compressor),
	}
}

func newID() string {
	return strconv.FormatInt(id.New(), 10)
}

// compressorConfig projects the orchestrator's Config into one a
// contextcompressor.Compressor understands.
func (o *Orchestrator) compressorConfig() contextcompressor.Config {
	return contextcompressor.Config{
		MaxContext:       o.cfg.MaxContextTokens,
		RecentWindow:     o.cfg.RecentWindow,
		SummaryChunkSize: o.cfg.SummaryChunkSize,
	}
}

// sessionCompressor returns the live compressor for a session, restoring it
// from KV on first use in this process (spec §4.5 "state is serialisable
// ... restored verbatim").
func (o *Orchestrator) sessionCompressor(ctx context.Context, sessionID string) *contextcompressor.Compressor {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.compressors[sessionID]; ok {
		return c
	}

	var c *contextcompressor.Compressor
	if raw, err := o.deps.KV.Get(ctx, kv.SessionKey(sessionID)); err == nil {
		var state contextcompressor.State
		if jsonErr := json.Unmarshal(raw, &state); jsonErr == nil {
			c = contextcompressor.FromState(state, o.compressorConfig(), o.deps.Summarizer)
		}
	}
	if c == nil {
		c = contextcompressor.New(sessionID, o.compressorConfig(), o.deps.Summarizer)
	}
	o.compressors[sessionID] = c
	return c
}

// SaveSession persists a session's compressor state under session:<id> with
// the 24h TTL spec §4.1 names.
func (o *Orchestrator) SaveSession(ctx context.Context, sessionID string) error {
	c := o.sessionCompressor(ctx, sessionID)
	raw, err := json.Marshal(c.ToState())
	if err != nil {
		return fmt.Errorf("orchestrator: marshal session state: %w", err)
	}
	return o.deps.KV.Set(ctx, kv.SessionKey(sessionID), raw, kv.TTLSession)
}

// ClearSession drops a session's in-memory compressor and KV record.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	delete(o.compressors, sessionID)
	o.mu.Unlock()
	return o.deps.KV.Del(ctx, kv.SessionKey(sessionID))
}

// ListSessions scans the session:* namespace.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]string, error) {
	keys, err := o.deps.KV.Scan(ctx, "session:")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len("session:"):])
	}
	return ids, nil
}

func (o *Orchestrator) saveTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now()
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal task: %w", err)
	}
	return o.deps.KV.Set(ctx, kv.TaskKey(task.ID), raw, kv.TTLSession)
}

// LoadTask fetches a task's current snapshot for GET /api/task/{id}.
func (o *Orchestrator) LoadTask(ctx context.Context, taskID string) (*model.Task, error) {
	raw, err := o.deps.KV.Get(ctx, kv.TaskKey(taskID))
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("orchestrator: unmarshal task: %w", err)
	}
	return &task, nil
}

// Run drives the full phase machine for one request and returns a channel of
// streamed events, closed when the task reaches a terminal status (complete,
// failed or awaiting-clarification). The caller must drain the channel.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (<-chan Event, error) {
	events := make(chan Event, 16)

	task, compressor, err := o.prepareTask(ctx, req)
	if err != nil {
		close(events)
		return nil, err
	}

	go func() {
		defer close(events)
		o.drive(ctx, task, compressor, events)
	}()

	return events, nil
}

// prepareTask resolves the task record a run should operate on: a fresh
// pending task, a resumed one loaded from KV, or one recreated from a
// session's resume context (spec §4.10 "resume_session").
func (o *Orchestrator) prepareTask(ctx context.Context, req RunRequest) (*model.Task, *contextcompressor.Compressor, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newID()
	}
	compressor := o.sessionCompressor(ctx, sessionID)

	if req.Resume && req.TaskID != "" {
		task, err := o.LoadTask(ctx, req.TaskID)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: resuming task %s: %w", req.TaskID, err)
		}
		if req.Input != "" {
			compressor.AddMessage(model.RoleUser, req.Input, time.Now())
		}
		return task, compressor, nil
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = newID()
	}

	task := &model.Task{
		ID:            taskID,
		SessionID:     sessionID,
		OriginalInput: req.Input,
		Status:        model.TaskStatusPending,
		MaxIterations: o.cfg.MaxIterations,
		CreatedAt:     time.Now(),
	}
	compressor.AddMessage(model.RoleUser, req.Input, time.Now())
	return task, compressor, nil
}

// drive runs the phase machine to completion, emitting events as it goes.
// Every phase transition is persisted before the next phase starts, matching
// the teacher's "TX2 saves, then loop continues" discipline.
func (o *Orchestrator) drive(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, events chan<- Event) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TaskID:    logger.Ptr(task.ID),
		SessionID: logger.Ptr(task.SessionID),
		Component: "maker.orchestrator",
	})
	span := logger.StartSpan(ctx, "orchestrator.run")
	ctx = span.Context()
	defer span.End()

	emit := func(e Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		ctx = logger.WithLogFields(ctx, logger.LogFields{Phase: logger.Ptr(string(task.Status))})

		switch task.Status {
		case model.TaskStatusPending:
			task.Status = model.TaskStatusPreprocessing
			if err := o.saveTask(ctx, task); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}

		case model.TaskStatusPreprocessing:
			o.runClassification(ctx, task, compressor, emit)
			if err := o.saveTask(ctx, task); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}
			if task.Status == model.TaskStatusAwaitingClarification {
				emit(Event{Type: EventClarification, Task: task})
				return
			}
			if task.Status == model.TaskStatusComplete || task.Status == model.TaskStatusFailed {
				emit(Event{Type: EventDone, Task: task, Done: true})
				return
			}

		case model.TaskStatusPlanning:
			if err := o.runPlanning(ctx, task, compressor, emit); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}
			if err := o.saveTask(ctx, task); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}
			if task.Status == model.TaskStatusAwaitingClarification {
				emit(Event{Type: EventClarification, Task: task})
				return
			}

		case model.TaskStatusCoding:
			if err := o.runCoding(ctx, task, compressor, emit); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}
			if err := o.saveTask(ctx, task); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}

		case model.TaskStatusReviewing:
			if err := o.runReview(ctx, task, compressor, emit); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}
			if err := o.saveTask(ctx, task); err != nil {
				o.fail(ctx, task, emit, err)
				return
			}

		case model.TaskStatusComplete, model.TaskStatusFailed:
			emit(Event{Type: EventDone, Task: task, Done: true})
			return

		default:
			o.fail(ctx, task, emit, fmt.Errorf("orchestrator: unknown task status %q", task.Status))
			return
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, task *model.Task, emit func(Event), err error) {
	fields := logger.GetLogFields(ctx)
	phase := ""
	if fields.Phase != nil {
		phase = *fields.Phase
	}
	slog.ErrorContext(ctx, "orchestrator run failed",
		"task_id", task.ID, "phase", phase, "component", fields.Component, "error", err)
	trace.SpanFromContext(ctx).RecordError(err)
	task.Status = model.TaskStatusFailed
	task.UnrecoverableError = err.Error()
	_ = o.saveTask(ctx, task)
	emit(Event{Type: EventError, Line: err.Error(), Task: task})
	emit(Event{Type: EventDone, Task: task, Done: true})
}

func progressLine(msg string) Event {
	return Event{Type: EventProgress, Line: msg}
}
