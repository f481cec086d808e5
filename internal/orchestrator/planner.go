package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/arclight-labs/maker/internal/contextcompressor"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/model"
)

// PlanContext is what the planner receives, assembled in the order spec
// §4.10 names: task description, narrative-aware HMN context, structural
// codebase summary, git-diff snippet.
type PlanContext struct {
	TaskDescription  string
	Narrative        string
	CodebaseSummary  string
	GitDiff          string
	ClarifiedContext string
}

const standardPlannerSystemPrompt = `You are a planning agent for a coding assistant. Break the task into an
ordered list of subtasks. Reply with a single JSON object of the shape:
{"subtasks":[{"id":"1","description":"...","target_modules":["..."],"dependencies":[],"warnings":[],"confidence":0.8}],"questions":["..."]}
Only populate "questions" if the task is genuinely ambiguous and you cannot produce a safe plan without
asking; otherwise omit it or leave it empty. Do not wrap the JSON in prose or code fences.`

// runPlanning implements spec §4.10's planning phase: assemble PlanContext,
// try the EE-planner if enabled, fall back to the standard planner, and
// route to awaiting-clarification if the plan carries explicit questions.
func (o *Orchestrator) runPlanning(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) error {
	emit(progressLine("planning"))

	planCtx, err := o.assemblePlanContext(ctx, task, compressor)
	if err != nil {
		return fmt.Errorf("orchestrator: assembling plan context: %w", err)
	}

	var plan *model.Plan
	if o.cfg.EnableEEPlanner && o.deps.EEPlanner != nil {
		plan, err = o.deps.EEPlanner.Plan(ctx, task, planCtx)
		if err != nil {
			emit(progressLine(fmt.Sprintf("ee-planner failed (%v), falling back to standard planner", err)))
			plan = nil
		}
	}

	if plan == nil {
		plan, err = o.runStandardPlanner(ctx, planCtx)
		if err != nil {
			return fmt.Errorf("orchestrator: standard planner: %w", err)
		}
	}

	if len(plan.Questions) > 0 {
		plan.ClarifiedContext = planCtx.ClarifiedContext
		task.Plan = plan
		o.storeClarification(ctx, task, plan.Questions)
		return nil
	}

	plan.ClarifiedContext = planCtx.ClarifiedContext
	task.Plan = plan
	task.Status = model.TaskStatusCoding
	return nil
}

// assemblePlanContext gathers the planner's four inputs. Each source is
// best-effort: a failure to reach the HMN or codeservice degrades that
// section to empty rather than failing planning outright.
func (o *Orchestrator) assemblePlanContext(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor) (PlanContext, error) {
	planCtx := PlanContext{TaskDescription: task.PreprocessedInput}

	if o.deps.Graph != nil {
		result := o.deps.Graph.QueryWithContext(task.PreprocessedInput, o.cfg.HMNTopK)
		planCtx.Narrative = strings.Join(result.Narratives, "\n")
	}

	if o.deps.Code != nil {
		if analysis, err := o.deps.Code.AnalyzeCodebase(); err == nil {
			planCtx.CodebaseSummary = summarizeCodebaseAnalysis(analysis)
		}
		if diff, err := o.deps.Code.GitDiff(ctx, ""); err == nil {
			planCtx.GitDiff = truncateText(diff.Output, 4000)
		}
	}

	if task.Plan != nil {
		planCtx.ClarifiedContext = task.Plan.ClarifiedContext
	}

	return planCtx, nil
}

func summarizeCodebaseAnalysis(a model.CodebaseAnalysis) string {
	totalFiles := 0
	for _, n := range a.FileCountByLanguage {
		totalFiles += n
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d files, %d total LOC across %d languages", totalFiles, a.TotalLines, len(a.FileCountByLanguage))
	if a.Truncated {
		sb.WriteString(" (truncated)")
	}
	return sb.String()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildPlannerUserPrompt(planCtx PlanContext) string {
	var sb strings.Builder
	sb.WriteString("Task:\n")
	sb.WriteString(planCtx.TaskDescription)
	if planCtx.Narrative != "" {
		sb.WriteString("\n\nRelevant codebase flows:\n")
		sb.WriteString(planCtx.Narrative)
	}
	if planCtx.CodebaseSummary != "" {
		sb.WriteString("\n\nCodebase summary:\n")
		sb.WriteString(planCtx.CodebaseSummary)
	}
	if planCtx.GitDiff != "" {
		sb.WriteString("\n\nCurrent diff:\n")
		sb.WriteString(planCtx.GitDiff)
	}
	if planCtx.ClarifiedContext != "" {
		sb.WriteString("\n\nClarified context:\n")
		sb.WriteString(planCtx.ClarifiedContext)
	}
	return sb.String()
}

type plannerResponseBody struct {
	Subtasks  []model.Subtask `json:"subtasks"`
	Questions []string        `json:"questions"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// runStandardPlanner calls the planner agent and parses its JSON reply,
// with a regex-based salvage pass on malformed output per spec §4.10.
func (o *Orchestrator) runStandardPlanner(ctx context.Context, planCtx PlanContext) (*model.Plan, error) {
	resp, err := o.deps.Agents.Call(ctx, llmclient.RolePlanner, llmclient.Request{
		SystemPrompt: standardPlannerSystemPrompt,
		UserPrompt:   buildPlannerUserPrompt(planCtx),
		Temperature:  0.1,
		MaxTokens:    2048,
	})
	if err != nil {
		return nil, err
	}

	body, parseErr := parsePlannerResponse(resp.Content)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing planner output: %w", parseErr)
	}

	return &model.Plan{Subtasks: body.Subtasks, Questions: body.Questions}, nil
}

func parsePlannerResponse(content string) (plannerResponseBody, error) {
	var body plannerResponseBody
	if err := json.Unmarshal([]byte(content), &body); err == nil {
		return body, nil
	}

	salvaged := jsonObjectPattern.FindString(content)
	if salvaged == "" {
		return body, fmt.Errorf("no JSON object found in planner output")
	}
	if err := json.Unmarshal([]byte(salvaged), &body); err != nil {
		return body, fmt.Errorf("salvaged JSON still invalid: %w", err)
	}
	return body, nil
}
