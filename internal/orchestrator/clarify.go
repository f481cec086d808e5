package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/model"
)

// Resume re-enters the orchestrator for a session, implementing spec
// §4.10's resume_session: the progress tracker's rendered resume context
// (empty when there is no tracker or it fails) becomes the new run's input,
// and the session's compressor is the live one or the one restored from KV.
// It does not look for or continue a task already in flight.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (<-chan Event, error) {
	orientation := ""
	if o.deps.Progress != nil {
		resumeCtx, err := o.deps.Progress.CreateResumeContext(ctx)
		if err == nil {
			orientation = resumeCtx.Render()
		}
	}
	return o.Run(ctx, RunRequest{Input: orientation, SessionID: sessionID})
}

// ResumeFromClarification implements spec §4.10's clarification resume
// path: POST /api/clarify/{task_id} retrieves the stored
// {original_task, questions}, merges the caller's answers, and continues
// the phase machine. A clarification raised during classification (no plan
// yet) restarts preprocessing with the merged input; one raised during
// planning injects the Q&A pairs into the plan's clarified-context field
// and resumes directly at coding, per spec.
func (o *Orchestrator) ResumeFromClarification(ctx context.Context, taskID string, answers []string) (<-chan Event, error) {
	task, err := o.LoadTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading task %s for clarification: %w", taskID, err)
	}
	if task.Status != model.TaskStatusAwaitingClarification {
		return nil, fmt.Errorf("orchestrator: task %s is not awaiting clarification (status %s)", taskID, task.Status)
	}

	raw, err := o.deps.KV.Get(ctx, kv.ClarificationKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading clarification for task %s: %w", taskID, err)
	}
	var clar model.Clarification
	if err := json.Unmarshal(raw, &clar); err != nil {
		return nil, fmt.Errorf("orchestrator: unmarshal clarification for task %s: %w", taskID, err)
	}
	_ = o.deps.KV.Del(ctx, kv.ClarificationKey(taskID))

	qa := renderQA(clar.Questions, answers)

	events := make(chan Event, 16)
	compressor := o.sessionCompressor(ctx, task.SessionID)
	compressor.AddMessage(model.RoleUser, qa, time.Now())

	if task.Plan == nil {
		task.OriginalInput = strings.TrimSpace(task.OriginalInput + "\n" + qa)
		task.Status = model.TaskStatusPending
	} else {
		task.Plan.ClarifiedContext = strings.TrimSpace(task.Plan.ClarifiedContext + "\n" + qa)
		task.Plan.Questions = nil
		task.Status = model.TaskStatusCoding
	}

	go func() {
		defer close(events)
		o.drive(ctx, task, compressor, events)
	}()

	return events, nil
}

func renderQA(questions, answers []string) string {
	var sb strings.Builder
	for i, q := range questions {
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q, answer)
	}
	return sb.String()
}
