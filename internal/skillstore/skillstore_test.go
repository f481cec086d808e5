package skillstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/internal/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	skill := &model.Skill{
		Name:         "regex-pattern-fixing-email",
		Description:  "Fixes email validation regexes",
		Category:     "regex-pattern-fixing",
		AppliesTo:    []string{"regex", "email"},
		Instructions: "Use a compiled regexp.MustCompile with anchors.",
		Origin:       model.SkillOriginCurated,
	}
	require.NoError(t, store.Save(skill))

	loaded, err := store.Reload(skill.Name)
	require.NoError(t, err)
	assert.Equal(t, skill.Name, loaded.Name)
	assert.Equal(t, skill.Description, loaded.Description)
	assert.Equal(t, skill.AppliesTo, loaded.AppliesTo)
	assert.Equal(t, skill.Instructions, loaded.Instructions)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&model.Skill{Name: "skill-a", AppliesTo: []string{"a"}}))
	require.NoError(t, store.Save(&model.Skill{Name: "skill-b", AppliesTo: []string{"b"}}))

	skills, err := store.LoadAll()
	require.NoError(t, err)
	assert.Len(t, skills, 2)
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.Load("missing-skill")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassifyPattern(t *testing.T) {
	name, ok := classifyPattern(`re := regexp.MustCompile("^[a-z]+$")`)
	assert.True(t, ok)
	assert.Equal(t, "regex-pattern-fixing", name)

	_, ok = classifyPattern("fmt.Println(\"hello\")")
	assert.False(t, ok)
}

func TestExtractFromTask_ApprovedWorthyCode(t *testing.T) {
	code := `
func ValidateEmail(s string) bool {
	re := regexp.MustCompile(` + "`" + `^[^@]+@[^@]+\.[^@]+$` + "`" + `)
	return re.MatchString(s)
}
` + string(make([]byte, 200))

	input := ExtractionInput{
		Task:          "fix email regex validation",
		GeneratedCode: code,
		Approved:      true,
	}

	skill, ok := ExtractFromTask(input, map[string]struct{}{})
	require.True(t, ok)
	assert.Contains(t, skill.Name, "regex-pattern-fixing")
	assert.Equal(t, model.SkillOriginLearnedPositive, skill.Origin)
}

func TestExtractFromTask_NotWorthy_TooShort(t *testing.T) {
	input := ExtractionInput{
		Task:          "fix email regex",
		GeneratedCode: `re := regexp.MustCompile("x")`,
		Approved:      true,
	}
	_, ok := ExtractFromTask(input, map[string]struct{}{})
	assert.False(t, ok)
}

func TestExtractFromTask_FailedWithIterationsAndErrorFeedback(t *testing.T) {
	input := ExtractionInput{
		Task:             "refactor ast walker",
		GeneratedCode:    "import ast\nast.parse(x)",
		Approved:         false,
		IterationCount:   3,
		HadErrorFeedback: true,
	}
	skill, ok := ExtractFromTask(input, map[string]struct{}{})
	require.True(t, ok)
	assert.Equal(t, model.SkillOriginLearnedNegative, skill.Origin)
}

func TestExtractFromTask_NameCollisionAppendsVersion(t *testing.T) {
	code := `re := regexp.MustCompile("^x$")` + string(make([]byte, 200))
	input := ExtractionInput{Task: "fix widget regex", GeneratedCode: code, Approved: true}

	existing := map[string]struct{}{"regex-pattern-fixing-widget": {}}
	skill, ok := ExtractFromTask(input, existing)
	require.True(t, ok)
	assert.Equal(t, "regex-pattern-fixing-widget-v2", skill.Name)
}

func TestVoteTallyWinner_TieBreaksByLabelOrder(t *testing.T) {
	tally := model.VoteTally{"A": 2, "B": 2, "C": 1}
	winner := tally.Winner([]string{"A", "B", "C"})
	assert.Equal(t, "A", winner)
}
