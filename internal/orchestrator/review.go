package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arclight-labs/maker/internal/contextcompressor"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/model"
)

const highResourceReviewPrompt = `You are a code reviewer. Given the task, the plan and the generated code,
decide whether the code fulfils the plan. Reply with a single JSON object:
{"status":"approved"|"failed","feedback":"...","suggestions":["..."]}
Do not wrap the JSON in prose or code fences.`

const lowResourceReflectionPrompt = `Reflect on your own plan against the code that was generated from it. Has
the plan been fulfilled? Reply with a single JSON object:
{"status":"approved"|"failed","feedback":"...","suggestions":["..."]}
Do not wrap the JSON in prose or code fences.`

type reviewVerdictBody struct {
	Status      string   `json:"status"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

var approvalMarkers = []string{"approved", "looks good", "lgtm", "satisfies the plan"}
var failureMarkers = []string{"failed", "does not satisfy", "incomplete", "needs fixes", "needs changes"}

// runReview implements spec §4.10's reviewing phase in both modes
// (dedicated reviewer agent, or the planner reflecting on its own plan),
// with a lenient fallback when the verdict can't be parsed as JSON. On
// failure it loops back to coding (iteration+1) or terminates at
// max_iterations.
func (o *Orchestrator) runReview(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) error {
	emit(progressLine("reviewing"))

	prompt := buildReviewPrompt(task)

	var resp *llmclient.Response
	var err error
	switch o.cfg.ReviewMode {
	case ReviewModeLow:
		resp, err = o.deps.Agents.Call(ctx, llmclient.RolePlanner, llmclient.Request{
			SystemPrompt: lowResourceReflectionPrompt,
			UserPrompt:   prompt,
			Temperature:  0.1,
			MaxTokens:    1024,
		})
	default:
		resp, err = o.deps.Agents.Call(ctx, llmclient.RoleReviewer, llmclient.Request{
			SystemPrompt: highResourceReviewPrompt,
			UserPrompt:   prompt,
			Temperature:  0.1,
			MaxTokens:    1024,
		})
	}
	if err != nil {
		return fmt.Errorf("orchestrator: review call: %w", err)
	}

	verdict := parseReviewVerdict(resp.Content)
	task.ReviewFeedback = verdict.Feedback

	if verdict.Status == string(model.ReviewVerdictApproved) {
		task.ReviewVerdict = model.ReviewVerdictApproved
		task.Status = model.TaskStatusComplete
		o.recordSkillOutcomes(ctx, task, true)
		emit(progressLine("review approved"))
		return nil
	}

	task.ReviewVerdict = model.ReviewVerdictFailed
	task.IterationCount++
	emit(progressLine(fmt.Sprintf("review failed: %s", verdict.Feedback)))

	if task.IterationCount >= task.MaxIterations {
		task.Status = model.TaskStatusFailed
		task.UnrecoverableError = "max iterations reached without an approved review"
		o.recordSkillOutcomes(ctx, task, false)
		return nil
	}

	task.Status = model.TaskStatusCoding
	return nil
}

func buildReviewPrompt(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(task.PreprocessedInput)
	if task.Plan != nil {
		sb.WriteString("\n\nPlan:\n")
		for _, st := range task.Plan.Subtasks {
			sb.WriteString("- " + st.Description + "\n")
		}
	}
	sb.WriteString("\n\nGenerated code:\n")
	sb.WriteString(task.LatestCode)
	return sb.String()
}

// parseReviewVerdict parses the reviewer's JSON reply, falling back to a
// lenient textual-marker scan when the model didn't return valid JSON
// (spec §4.10: "a lenient fallback that treats textual approval markers as
// approval").
func parseReviewVerdict(content string) reviewVerdictBody {
	var body reviewVerdictBody
	if err := json.Unmarshal([]byte(content), &body); err == nil && body.Status != "" {
		return body
	}

	salvaged := jsonObjectPattern.FindString(content)
	if salvaged != "" {
		if err := json.Unmarshal([]byte(salvaged), &body); err == nil && body.Status != "" {
			return body
		}
	}

	lower := strings.ToLower(content)
	body.Feedback = content
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			body.Status = string(model.ReviewVerdictFailed)
			return body
		}
	}
	for _, marker := range approvalMarkers {
		if strings.Contains(lower, marker) {
			body.Status = string(model.ReviewVerdictApproved)
			return body
		}
	}
	body.Status = string(model.ReviewVerdictFailed)
	return body
}
