package skillstore

import (
	"regexp"
	"strconv"
	"time"

	"github.com/arclight-labs/maker/internal/model"
)

// patternRule is one entry of the fixed rule set over generated code used
// to classify a pattern-type (spec §4.6 "Pattern-type classification is a
// fixed rule set ... regex usage -> regex-pattern-fixing, AST import ->
// python-ast-refactoring, etc.").
type patternRule struct {
	name    string
	pattern *regexp.Regexp
}

var patternRules = []patternRule{
	{name: "regex-pattern-fixing", pattern: regexp.MustCompile(`regexp\.|re\.compile|re\.match|re\.sub`)},
	{name: "python-ast-refactoring", pattern: regexp.MustCompile(`\bast\.\w+|import ast\b`)},
	{name: "sql-query-construction", pattern: regexp.MustCompile(`(?i)select\s+.+\s+from\s+|sqlx?\.`)},
	{name: "http-handler-wiring", pattern: regexp.MustCompile(`http\.HandlerFunc|gin\.Context|router\.(GET|POST|PUT|DELETE)`)},
	{name: "concurrency-coordination", pattern: regexp.MustCompile(`sync\.(Mutex|WaitGroup)|go func\(|<-chan|chan<-`)},
	{name: "error-wrapping", pattern: regexp.MustCompile(`fmt\.Errorf|errors\.Wrap|errors\.Is\(`)},
}

func classifyPattern(code string) (string, bool) {
	for _, rule := range patternRules {
		if rule.pattern.MatchString(code) {
			return rule.name, true
		}
	}
	return "", false
}

// hardcodedLiteralPattern approximates "hard-coded literal" as a quoted
// string or bare integer token, a coarse but cheap one-off detector (spec
// §4.6 "not a one-off (<= 10 hard-coded literals, no deep filesystem
// paths)").
var hardcodedLiteralPattern = regexp.MustCompile(`"[^"]{1,80}"|\b\d{2,}\b`)

var deepPathPattern = regexp.MustCompile(`(?:/[\w.-]+){4,}`)

// salientKeyword picks the most distinctive word in task for naming (spec
// §4.6 "Name = <pattern>-<salient-keyword>"), approximated as the longest
// alphabetic word outside a short stopword list.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "for": {}, "and": {}, "in": {},
	"of": {}, "with": {}, "fix": {}, "add": {}, "update": {}, "is": {},
}

func salientKeyword(task string) string {
	best := ""
	for w := range wordSet(task) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if len(w) > len(best) {
			best = w
		}
	}
	if best == "" {
		best = "general"
	}
	return best
}

// ExtractionInput carries the fields of a completed task needed to decide
// worthiness and build a skill (spec §4.6 "Extraction").
type ExtractionInput struct {
	Task           string
	GeneratedCode  string
	Approved       bool
	IterationCount int
	HadErrorFeedback bool
}

// ExtractFromTask implements spec §4.6's worthiness test and skill
// construction. It returns (nil, false) when the task is not worth
// extracting a skill from.
func ExtractFromTask(input ExtractionInput, existingNames map[string]struct{}) (*model.Skill, bool) {
	worthy := false
	if input.Approved && len(input.GeneratedCode) >= 200 {
		if _, detected := classifyPattern(input.GeneratedCode); detected {
			literals := len(hardcodedLiteralPattern.FindAllString(input.GeneratedCode, -1))
			if literals <= 10 && !deepPathPattern.MatchString(input.GeneratedCode) {
				worthy = true
			}
		}
	}
	if !worthy && !input.Approved && input.IterationCount > 2 && input.HadErrorFeedback {
		worthy = true
	}
	if !worthy {
		return nil, false
	}

	pattern, ok := classifyPattern(input.GeneratedCode)
	if !ok {
		pattern = "general-pattern"
	}
	keyword := salientKeyword(input.Task)

	baseName := pattern + "-" + keyword
	name := baseName
	for n := 2; ; n++ {
		if _, collides := existingNames[name]; !collides {
			break
		}
		name = baseName + "-v" + strconv.Itoa(n)
	}

	origin := model.SkillOriginLearnedPositive
	if !input.Approved {
		origin = model.SkillOriginLearnedNegative
	}

	return &model.Skill{
		Name:         name,
		Description:  "Extracted from task: " + truncate(input.Task, 120),
		Category:     pattern,
		AppliesTo:    []string{keyword},
		Instructions: input.GeneratedCode,
		CreatedAt:    time.Now().UTC(),
		Origin:       origin,
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

