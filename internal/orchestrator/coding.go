package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arclight-labs/maker/internal/contextcompressor"
	"github.com/arclight-labs/maker/internal/model"
	"github.com/arclight-labs/maker/internal/skillstore"
)

const codingSystemPromptBase = `You are a coding agent. Implement the plan below against the codebase context
provided. Return only the code, organized by file, with a one-line file path
header before each block.`

// runCoding implements the generate_candidates -> vote half of spec §4.10's
// coding phase: assemble the prompt from plan + HMN narrative + conversation
// context, optionally announce and splice in a highly relevant skill, fan
// out MAKER candidates, vote, and move to reviewing.
func (o *Orchestrator) runCoding(ctx context.Context, task *model.Task, compressor *contextcompressor.Compressor, emit func(Event)) error {
	emit(progressLine(fmt.Sprintf("generating code (iteration %d/%d)", task.IterationCount+1, task.MaxIterations)))

	systemPrompt := codingSystemPromptBase
	skillName := o.announceRelevantSkill(ctx, task, emit)
	if skillName != "" {
		if skill, err := o.deps.Skills.Load(skillName); err == nil {
			systemPrompt += "\n\nApplicable skill \"" + skill.Name + "\":\n" + truncateText(skill.Instructions, 1500)
		}
	}

	userPrompt := buildCodingUserPrompt(task, compressor)

	candidates := o.deps.Maker.GenerateCandidates(ctx, systemPrompt, userPrompt, o.cfg.NumCandidates)
	if len(candidates) == 0 {
		return fmt.Errorf("orchestrator: no valid candidates generated")
	}

	voteResult := o.deps.Maker.Vote(ctx, candidates, systemPrompt, votePromptTemplate(task), o.cfg.VoteK)
	winner := voteResult.Winner
	if winner == "" {
		winner = candidates[0]
	}

	task.LatestCode = winner
	compressor.AddMessage(model.RoleAssistant, winner, time.Now())
	task.Status = model.TaskStatusReviewing
	return nil
}

func buildCodingUserPrompt(task *model.Task, compressor *contextcompressor.Compressor) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(task.PreprocessedInput)
	if task.Plan != nil {
		sb.WriteString("\n\nPlan:\n")
		for _, st := range task.Plan.Subtasks {
			fmt.Fprintf(&sb, "- %s (%s)\n", st.Description, strings.Join(st.TargetModules, ", "))
			for _, n := range st.Narratives {
				sb.WriteString("  context: " + n + "\n")
			}
		}
		if task.Plan.ClarifiedContext != "" {
			sb.WriteString("\nClarified context:\n" + task.Plan.ClarifiedContext + "\n")
		}
	}
	if task.ReviewFeedback != "" {
		sb.WriteString("\n\nPrevious review feedback to address:\n")
		sb.WriteString(task.ReviewFeedback)
	}
	return sb.String()
}

func votePromptTemplate(task *model.Task) string {
	return "Task: " + task.PreprocessedInput + "\n\nHere are several candidate implementations, each under its " +
		"own label. Pick the one that best and most completely satisfies the task and plan, has the fewest " +
		"obvious bugs, and best follows the codebase's conventions. Reply with only the winning label."
}

// announceRelevantSkill implements spec §4.10's "at iteration start, if a
// highly relevant skill exists (score > 0.85), the orchestrator announces
// it". Returns the announced skill's name, or "" if none qualified.
func (o *Orchestrator) announceRelevantSkill(ctx context.Context, task *model.Task, emit func(Event)) string {
	if o.deps.Skills == nil || o.deps.SkillRegistry == nil {
		return ""
	}

	scored, err := skillstore.FindRelevant(ctx, o.deps.Skills, o.deps.SkillRegistry, task.PreprocessedInput, 1, o.deps.Embed)
	if err != nil || len(scored) == 0 || scored[0].Score <= o.cfg.SkillAnnounceThreshold {
		return ""
	}

	name := scored[0].Name
	emit(progressLine(fmt.Sprintf("applying skill %q (relevance %.2f)", name, scored[0].Score)))
	task.SkillsUsed = appendUnique(task.SkillsUsed, name)
	return name
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// recordSkillOutcomes updates every skill used in this task's run once it
// reaches a terminal status: success increments on approval, failure after
// max iterations otherwise (spec §4.10).
func (o *Orchestrator) recordSkillOutcomes(ctx context.Context, task *model.Task, success bool) {
	if o.deps.SkillRegistry == nil {
		return
	}
	for _, name := range task.SkillsUsed {
		_ = o.deps.SkillRegistry.UpdateStats(ctx, name, success)
	}
}
