package orchestrator

import (
	"context"

	"github.com/arclight-labs/maker/internal/checkpoint"
	"github.com/arclight-labs/maker/internal/contextcompressor"
)

// ContextStats exposes GET /api/context/{session}'s payload.
func (o *Orchestrator) ContextStats(ctx context.Context, sessionID string) contextcompressor.Stats {
	return o.sessionCompressor(ctx, sessionID).Stats()
}

// Compact implements POST /api/compact: force a compression pass regardless
// of whether the session is currently over budget isn't possible through
// CompressIfNeeded's threshold check, so this adds the directive and then
// runs the normal conditional pass — a session already under budget is a
// no-op, matching spec §4.5's compression trigger semantics.
func (o *Orchestrator) Compact(ctx context.Context, sessionID, instructions string) error {
	c := o.sessionCompressor(ctx, sessionID)
	if instructions != "" {
		c.SetCustomDirective(instructions)
	}
	_, err := c.CompressIfNeeded(ctx)
	return err
}

// Checkpoint implements POST /api/session/{id}/checkpoint: a test-gated
// commit of the session's latest generated code (spec §4.8, §6).
func (o *Orchestrator) Checkpoint(ctx context.Context, sessionID, taskID, featureName string) (checkpoint.Result, error) {
	task, err := o.LoadTask(ctx, taskID)
	if err != nil {
		return checkpoint.Result{}, err
	}
	return o.deps.Checkpoints.CreateCheckpoint(ctx, featureName, task.LatestCode, sessionID), nil
}
