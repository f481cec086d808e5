package orchestrator

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/arclight-labs/maker/internal/contextcompressor"
	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/model"
)

const triageSystemPrompt = `You triage incoming requests for a coding assistant. Read the request and
reply with exactly one category keyword on its own first line, chosen from:
QUESTION - the user is asking about the codebase or a concept, no code change requested.
SIMPLE_CODE - a small, self-contained code change (one function, one file, a quick fix).
COMPLEX_CODE - a change that touches multiple modules, needs a plan, or is underspecified.
You may add a short rationale on following lines, but the first line must be exactly one keyword.`

// ambiguousWords are the bare verbs that, alone or near-alone, don't carry
// enough intent to classify or plan against.
var ambiguousWords = map[string]bool{
	"check": true, "help": true, "fix": true, "look": true, "review": true,
}

var hallucinationMarkers = []string{"<tool_call", "```tool", "/nonexistent/", "/path/to/"}

// runClassification implements spec §4.10's preprocessing/classification
// phase: a triage prompt to the preprocessor agent, a rule-based fallback
// when that fails or is ambiguous, a clarification rebuff for threadbare
// "check/help" inputs, and immediate handling of the question and
// simple_code branches that never reach planning.
func (o *Orchestrator) runClassification(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) {
	emit(progressLine("classifying request"))

	if isAmbiguousShort(task.OriginalInput) {
		o.storeClarification(ctx, task, []string{
			"Could you say more about what you'd like checked or helped with? A file, function, or behavior would help.",
		})
		return
	}

	task.PreprocessedInput = strings.TrimSpace(task.OriginalInput)

	resp, err := o.deps.Agents.Call(ctx, llmclient.RolePreprocessor, llmclient.Request{
		SystemPrompt: triageSystemPrompt,
		UserPrompt:   task.PreprocessedInput,
		Temperature:  0.0,
		MaxTokens:    256,
	})

	classification := model.Classification("")
	if err == nil {
		classification = parseClassification(resp.Content)
	}
	if classification == "" {
		classification = ruleBasedClassification(task.PreprocessedInput)
	}
	task.Classification = classification

	switch classification {
	case model.ClassificationQuestion:
		o.runAnswer(ctx, task, compressor, emit)
	case model.ClassificationSimpleCode:
		o.runDirectCode(ctx, task, compressor, emit)
	default:
		task.Status = model.TaskStatusPlanning
	}
}

func isAmbiguousShort(input string) bool {
	fields := strings.Fields(strings.ToLower(input))
	if len(fields) == 0 || len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		if ambiguousWords[strings.Trim(f, "?.!")] {
			return true
		}
	}
	return false
}

var classificationKeywords = []struct {
	needle string
	value  model.Classification
}{
	{"complex_code", model.ClassificationComplexCode},
	{"simple_code", model.ClassificationSimpleCode},
	{"question", model.ClassificationQuestion},
}

// parseClassification extracts the first matching category keyword from the
// preprocessor's reply, per spec §4.10.
func parseClassification(content string) model.Classification {
	lower := strings.ToLower(content)
	for _, c := range classificationKeywords {
		if strings.Contains(lower, c.needle) {
			return c.value
		}
	}
	return ""
}

var codeVerbs = regexp.MustCompile(`(?i)\b(implement|write|add|fix|refactor|update|create|build|modify|change)\b`)

// ruleBasedClassification is the fallback spec §4.10 calls for when the
// preprocessor's classification is ambiguous or failed: short questions end
// in "?" and carry no code verb; long or multi-step requests are treated as
// complex; everything else with a code verb is simple.
func ruleBasedClassification(input string) model.Classification {
	trimmed := strings.TrimSpace(input)
	words := strings.Fields(trimmed)
	hasCodeVerb := codeVerbs.MatchString(trimmed)

	if strings.HasSuffix(trimmed, "?") && !hasCodeVerb {
		return model.ClassificationQuestion
	}
	if len(words) > 40 || strings.Contains(trimmed, " and then ") || strings.Count(trimmed, ".") > 2 {
		return model.ClassificationComplexCode
	}
	if hasCodeVerb {
		return model.ClassificationSimpleCode
	}
	return model.ClassificationQuestion
}

// runAnswer handles the question branch: a single-agent streamed answer,
// with a lightweight hallucination check appended as a self-correction
// notice rather than surfaced as an error (spec §4.10).
func (o *Orchestrator) runAnswer(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) {
	emit(progressLine("answering"))

	contextText, err := compressor.GetContext(ctx)
	if err != nil {
		contextText = task.PreprocessedInput
	}

	chunks, err := o.deps.Agents.Stream(ctx, llmclient.RolePlanner, llmclient.Request{
		SystemPrompt: "Answer the user's question about the codebase concisely and only state things you can verify; do not invent file paths or pretend to call tools.",
		UserPrompt:   contextText,
		Temperature:  0.2,
		MaxTokens:    1024,
	})
	if err != nil {
		task.Status = model.TaskStatusFailed
		task.UnrecoverableError = err.Error()
		return
	}

	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			emit(Event{Type: EventError, Line: chunk.Err.Error()})
			continue
		}
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
			emit(Event{Type: EventChunk, Chunk: chunk.Content})
		}
	}

	answer := full.String()
	if containsHallucinationMarker(answer) {
		notice := "\n\n(Note: the above may reference paths or tools I can't verify from here; treat specifics as suggestions, not facts.)"
		answer += notice
		emit(Event{Type: EventChunk, Chunk: notice})
	}

	compressor.AddMessage(model.RoleAssistant, answer, time.Now())
	task.LatestCode = ""
	task.ReviewVerdict = model.ReviewVerdictApproved
	task.Status = model.TaskStatusComplete
}

func containsHallucinationMarker(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range hallucinationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// runDirectCode handles the simple_code branch: one coder call, no planning
// or voting, straight to complete (spec §4.10's diagram has no review step
// on this path).
func (o *Orchestrator) runDirectCode(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) {
	emit(progressLine("generating direct code change"))

	contextText, err := compressor.GetContext(ctx)
	if err != nil {
		contextText = task.PreprocessedInput
	}

	resp, err := o.deps.Agents.Call(ctx, llmclient.RoleCoder, llmclient.Request{
		SystemPrompt: "Write the minimal code change requested. Return only the code and, if needed, one line naming the file it belongs in.",
		UserPrompt:   contextText,
		Temperature:  0.2,
		MaxTokens:    4096,
	})
	if err != nil {
		task.Status = model.TaskStatusFailed
		task.UnrecoverableError = err.Error()
		return
	}

	task.LatestCode = resp.Content
	compressor.AddMessage(model.RoleAssistant, resp.Content, time.Now())
	task.ReviewVerdict = model.ReviewVerdictApproved
	task.Status = model.TaskStatusComplete
}

// storeClarification pauses the task pending user input, per spec §4.10's
// clarification mechanism: {original_task, questions} under
// clarification:<task> with a 1h TTL.
func (o *Orchestrator) storeClarification(ctx context.Context, task *model.Task, questions []string) {
	task.Status = model.TaskStatusAwaitingClarification
	clar := model.Clarification{OriginalTask: task.OriginalInput, Questions: questions}
	raw, err := json.Marshal(clar)
	if err != nil {
		task.Status = model.TaskStatusFailed
		task.UnrecoverableError = err.Error()
		return
	}
	if err := o.deps.KV.Set(ctx, kv.ClarificationKey(task.ID), raw, kv.TTLClarification); err != nil {
		task.Status = model.TaskStatusFailed
		task.UnrecoverableError = err.Error()
	}
}
