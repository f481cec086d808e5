// Package maker implements the MAKER candidate/vote engine (spec §4.9): a
// generic parallel-quorum selector over opaque strings, oblivious to
// "code" as a concept. It is grounded on internal/brain/planner.go's
// executeToolsParallel bounded-semaphore fan-out (sem chan + WaitGroup),
// generalized from "run K tool calls in parallel" to "run N candidate
// generations in parallel, then tally 2K-1 voters".
package maker

import (
	"context"
	"strings"
	"sync"

	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/model"
)

// maxParallelAgents bounds concurrent in-flight agent calls from this
// engine, mirroring the teacher's maxParallelExplorers constant.
const maxParallelAgents = 6

// Candidate is one generated attempt, labelled for voting once collected.
type Candidate struct {
	Label   string
	Content string
}

// Engine drives candidate generation and quorum voting through an
// llmclient.Registry; it never inspects candidate content itself.
type Engine struct {
	registry *llmclient.Registry
}

// New builds an Engine over a role registry.
func New(registry *llmclient.Registry) *Engine {
	return &Engine{registry: registry}
}

// GenerateCandidates fans out n parallel coder invocations with the
// temperature grid 0.3+0.1*i, all sharing systemPrompt/userPrompt. Errored
// calls are dropped; if all n error, the result is empty (spec §4.9
// "Collect all non-error results. If zero valid candidates, return
// empty.").
func (e *Engine) GenerateCandidates(ctx context.Context, systemPrompt, userPrompt string, n int) []string {
	if n <= 0 {
		return nil
	}

	results := make([]string, n)
	ok := make([]bool, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelAgents)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			temperature := 0.3 + 0.1*float64(idx)
			resp, err := e.registry.Call(ctx, llmclient.RoleCoder, llmclient.Request{
				SystemPrompt: systemPrompt,
				UserPrompt:   userPrompt,
				Temperature:  temperature,
			})
			if err != nil {
				return
			}
			results[idx] = resp.Content
			ok[idx] = true
		}(i)
	}

	wg.Wait()

	candidates := make([]string, 0, n)
	for i, valid := range ok {
		if valid {
			candidates = append(candidates, results[i])
		}
	}
	return candidates
}

// labelFor returns the spreadsheet-style label (A, B, ..., Z, AA, AB, ...)
// for index i, though in practice candidate counts never approach 26.
func labelFor(i int) string {
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if i < len(letters) {
		return string(letters[i])
	}
	return labelFor(i/len(letters)-1) + string(letters[i%len(letters)])
}

// VoteResult is what Vote returns: the winning candidate content (empty if
// none) and the raw label tally.
type VoteResult struct {
	Winner string
	Tally  model.VoteTally
}

// Vote implements spec §4.9's vote(candidates, task, k). With 0 or 1
// candidate it short-circuits; otherwise it labels candidates and runs
// 2k-1 parallel voter invocations at low temperature, tallying each
// voter's first capital letter in the label set, declaring the first
// label to reach k votes the winner (or the argmax with label-order
// tie-break if none reaches k).
func (e *Engine) Vote(ctx context.Context, candidates []string, systemPrompt, userPromptTemplate string, k int) VoteResult {
	if len(candidates) == 0 {
		return VoteResult{}
	}
	if len(candidates) == 1 {
		return VoteResult{Winner: candidates[0]}
	}

	labels := make([]string, len(candidates))
	for i := range candidates {
		labels[i] = labelFor(i)
	}

	numVoters := 2*k - 1
	if numVoters < 1 {
		numVoters = 1
	}

	votes := make(chan string, numVoters)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelAgents)

	prompt := buildVoterPrompt(userPromptTemplate, labels, candidates)

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			resp, err := e.registry.Call(ctx, llmclient.RoleVoter, llmclient.Request{
				SystemPrompt: systemPrompt,
				UserPrompt:   prompt,
				Temperature:  0.1,
			})
			if err != nil {
				return
			}

			label := firstCapitalLetterInSet(resp.Content, labels)
			if label != "" {
				votes <- label
			}
		}()
	}

	wg.Wait()
	close(votes)

	tally := model.VoteTally{}
	for label := range votes {
		tally[label]++
		if tally[label] >= k {
			return VoteResult{Winner: candidateForLabel(candidates, labels, label), Tally: tally}
		}
	}

	winnerLabel := tally.Winner(labels)
	return VoteResult{Winner: candidateForLabel(candidates, labels, winnerLabel), Tally: tally}
}

func candidateForLabel(candidates, labels []string, label string) string {
	for i, l := range labels {
		if l == label {
			return candidates[i]
		}
	}
	return ""
}

func buildVoterPrompt(template string, labels, candidates []string) string {
	var sb strings.Builder
	sb.WriteString(template)
	sb.WriteString("\n\n")
	for i, label := range labels {
		sb.WriteString(label)
		sb.WriteString(":\n")
		sb.WriteString(candidates[i])
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// firstCapitalLetterInSet scans content for the first character that is
// both upper-case and a member of labels, per spec §4.9 "Parse each
// voter's response as its first capital letter in the label set."
func firstCapitalLetterInSet(content string, labels []string) string {
	set := make(map[byte]string, len(labels))
	for _, l := range labels {
		if len(l) == 1 {
			set[l[0]] = l
		}
	}
	for i := 0; i < len(content); i++ {
		c := content[i]
		if c >= 'A' && c <= 'Z' {
			if label, ok := set[c]; ok {
				return label
			}
		}
	}
	return ""
}
