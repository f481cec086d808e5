package model

import "time"

// TaskStatus is the workflow phase a task currently occupies.
type TaskStatus string

const (
	TaskStatusPending               TaskStatus = "pending"
	TaskStatusPreprocessing         TaskStatus = "preprocessing"
	TaskStatusPlanning              TaskStatus = "planning"
	TaskStatusCoding                TaskStatus = "coding"
	TaskStatusReviewing             TaskStatus = "reviewing"
	TaskStatusComplete              TaskStatus = "complete"
	TaskStatusFailed                TaskStatus = "failed"
	TaskStatusAwaitingClarification TaskStatus = "awaiting-clarification"
)

// ReviewVerdict is the outcome of a review phase.
type ReviewVerdict string

const (
	ReviewVerdictApproved ReviewVerdict = "approved"
	ReviewVerdictFailed   ReviewVerdict = "failed"
	ReviewVerdictNone     ReviewVerdict = ""
)

// Classification is the preprocessor's triage outcome for a task.
type Classification string

const (
	ClassificationQuestion    Classification = "question"
	ClassificationSimpleCode  Classification = "simple_code"
	ClassificationComplexCode Classification = "complex_code"
)

// ContextStats is a snapshot of the context compressor's token accounting at
// the moment a task's state was last persisted.
type ContextStats struct {
	RecentTokens     int `json:"recent_tokens"`
	CompressedTokens int `json:"compressed_tokens"`
}

// Task is the durable record of one orchestrator run, from first user input
// to a terminal status. See spec §3 "Task".
type Task struct {
	ID                string         `json:"id"`
	SessionID          string         `json:"session_id"`
	OriginalInput      string         `json:"original_input"`
	PreprocessedInput  string         `json:"preprocessed_input,omitempty"`
	Classification     Classification `json:"classification,omitempty"`
	Plan               *Plan          `json:"plan,omitempty"`
	LatestCode         string         `json:"latest_code,omitempty"`
	ReviewVerdict       ReviewVerdict `json:"review_verdict,omitempty"`
	ReviewFeedback      string        `json:"review_feedback,omitempty"`
	IterationCount      int           `json:"iteration_count"`
	MaxIterations       int           `json:"max_iterations"`
	Status              TaskStatus    `json:"status"`
	UnrecoverableError  string        `json:"unrecoverable_error,omitempty"`
	ContextStats        ContextStats  `json:"context_stats"`
	SkillsUsed          []string      `json:"skills_used,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Valid reports whether the task's invariants from spec §3 hold.
func (t *Task) Valid() bool {
	if t.IterationCount > t.MaxIterations {
		return false
	}
	if t.Status == TaskStatusComplete && t.ReviewVerdict != ReviewVerdictApproved {
		return false
	}
	if t.Status == TaskStatusFailed && t.IterationCount < t.MaxIterations && t.UnrecoverableError == "" {
		return false
	}
	return true
}

// Plan is the output of the planning phase, produced by either the
// EE-planner or the standard planner. Both origins normalize to this shape
// (spec §9 "EE-planner / standard-planner adapter pattern").
type Plan struct {
	Subtasks         []Subtask `json:"subtasks"`
	ClarifiedContext string    `json:"clarified_context,omitempty"`
	Questions        []string  `json:"questions,omitempty"`
}

// Subtask is one unit of planned work, possibly carrying narrative context
// preserved from the hierarchical memory network.
type Subtask struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	TargetModules  []string `json:"target_modules,omitempty"`
	Narratives     []string `json:"narratives,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
}

// Clarification is the pending question set stored while a task waits for
// the user to answer, keyed by clarification:<task> with a 1h TTL.
type Clarification struct {
	OriginalTask string   `json:"original_task"`
	Questions    []string `json:"questions"`
}
