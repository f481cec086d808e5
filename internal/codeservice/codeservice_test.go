package codeservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/worker"
)

type stubRunner struct {
	out []byte
	err error
}

func (r stubRunner) Run(_ context.Context, _ worker.Command) ([]byte, error) {
	return r.out, r.err
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	parser := astparse.New()
	t.Cleanup(parser.Close)
	return New(root, parser, stubRunner{}, nil), root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestResolvePath_RejectsTraversal(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.resolvePath("../../etc/passwd")
	require.Error(t, err)
	assert.IsType(t, ErrPathTraversal{}, err)
}

func TestReadFile_SmallFileReturnsFullText(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, root, "main.go", "package main\n")

	result, err := svc.ReadFile(context.Background(), "main.go", true)
	require.NoError(t, err)
	assert.False(t, result.Chunked)
	assert.Equal(t, "package main\n", result.Text)
}

func TestReadFile_ChunksLargeGoFileOnFunctionBoundaries(t *testing.T) {
	svc, root := newTestService(t)

	var body string
	for i := 0; i < 300; i++ {
		body += "func F" + string(rune('A'+i%26)) + "() {\n\t_ = 1\n}\n\n"
	}
	writeFile(t, root, "big.go", "package sample\n\n"+body)

	result, err := svc.ReadFile(context.Background(), "big.go", true)
	require.NoError(t, err)
	require.True(t, result.Chunked)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "function", result.Chunks[0].Kind)
}

func TestReadFile_NonParseableFallsBackToFixedLines(t *testing.T) {
	svc, root := newTestService(t)
	var body string
	for i := 0; i < 500; i++ {
		body += "this is line content padding to exceed threshold quickly\n"
	}
	writeFile(t, root, "notes.txt", body)

	result, err := svc.ReadFile(context.Background(), "notes.txt", true)
	require.NoError(t, err)
	require.True(t, result.Chunked)
	assert.Equal(t, "lines", result.Chunks[0].Kind)
}

func TestAnalyzeFile_GoImportsClassifiedExternalInternal(t *testing.T) {
	svc, root := newTestService(t)
	src := `package sample

import (
	"fmt"
	"github.com/some/external"
)
`
	writeFile(t, root, "sample.go", src)

	analysis, err := svc.AnalyzeFile("sample.go")
	require.NoError(t, err)
	assert.Equal(t, "go", analysis.Language)

	var sawStdlib, sawExternal bool
	for _, d := range analysis.Dependencies {
		if d.ImportPath == "fmt" {
			sawStdlib = !d.IsExternal
		}
		if d.ImportPath == "github.com/some/external" {
			sawExternal = d.IsExternal
		}
	}
	assert.True(t, sawStdlib, "fmt should be classified as stdlib")
	assert.True(t, sawExternal, "github.com/... should be classified external")
}

func TestAnalyzeCodebase_SkipsExcludedDirsAndCounts(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")

	analysis, err := svc.AnalyzeCodebase()
	require.NoError(t, err)
	assert.Equal(t, 1, analysis.FileCountByLanguage["go"])
}

func TestSearchDocs_FindsCaseInsensitiveSubstring(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, root, "README.md", "# Title\n\nThis project uses a Checkpoint manager for commits.\n")

	matches, err := svc.SearchDocs("checkpoint")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestFindReferences_PythonClassifiesDefinitions(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, root, "lib.py", "def helper():\n    pass\n\n\ndef caller():\n    helper()\n")

	refs, err := svc.FindReferences(context.Background(), "helper")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, refs[0].IsDefinition)
	assert.False(t, refs[1].IsDefinition)
}

func TestFindReferences_NonPythonUsesWordBoundaryRegex(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, root, "lib.go", "func Helper() {}\n\nfunc Caller() {\n\tHelper()\n}\n")

	refs, err := svc.FindReferences(context.Background(), "Helper")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, refs[0].IsDefinition)
	assert.False(t, refs[1].IsDefinition)
}

func TestFindCallers_NoGraphReturnsDiagnostic(t *testing.T) {
	svc, _ := newTestService(t)
	result := svc.FindCallers("Foo")
	assert.Empty(t, result.Callers)
	assert.NotEmpty(t, result.Diagnostic)
}

type stubGraph struct {
	callers     []string
	descendants []string
}

func (g stubGraph) Callers(string) ([]string, bool)            { return g.callers, true }
func (g stubGraph) DescendantClosure(string) ([]string, bool) { return g.descendants, true }

func TestFindCallers_WithGraphReturnsCallers(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetGraph(stubGraph{callers: []string{"a.go::Caller"}})

	result := svc.FindCallers("a.go::Helper")
	assert.Equal(t, []string{"a.go::Caller"}, result.Callers)
}

func TestRunSubprocess_ReturnsOutputAndExitCode(t *testing.T) {
	svc, _ := newTestService(t)
	svc.runner = stubRunner{out: []byte("diff output")}

	result, err := svc.GitDiff(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "diff output", result.Output)
}

func TestGitDiff_RejectsPathOutsideRoot(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GitDiff(context.Background(), "../outside.go")
	require.Error(t, err)
}
