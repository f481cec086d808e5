// Package astparse wraps tree-sitter grammars for the handful of languages
// the code service (spec §4.3) and hierarchical memory ingest (spec §4.4)
// need real syntax trees for, rather than line-oriented heuristics. It is
// grounded on _examples/theRebelliousNerd-codenerd's internal/world
// TreeSitterParser: one *sitter.Parser per language, reused across calls.
package astparse

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is one of the grammars this package can parse.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangUnknown    Language = ""
)

// LanguageForExt maps a file extension to a parseable language, or
// LangUnknown if the file should fall back to line-oriented handling. This
// is the same closed table analyze_file's language detection uses (spec
// §4.3); the subset that also has a grammar here is parseable.
func LanguageForExt(ext string) Language {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".jsx", ".mjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	case ".rs":
		return LangRust
	default:
		return LangUnknown
	}
}

// Parser holds one tree-sitter parser per supported language, mirroring the
// teacher's TreeSitterParser lifecycle (construct once, Close when done).
type Parser struct {
	goParser     *sitter.Parser
	pythonParser *sitter.Parser
	jsParser     *sitter.Parser
	tsParser     *sitter.Parser
	rustParser   *sitter.Parser
}

// New constructs a Parser with every supported grammar loaded.
func New() *Parser {
	p := &Parser{
		goParser:     sitter.NewParser(),
		pythonParser: sitter.NewParser(),
		jsParser:     sitter.NewParser(),
		tsParser:     sitter.NewParser(),
		rustParser:   sitter.NewParser(),
	}
	p.goParser.SetLanguage(golang.GetLanguage())
	p.pythonParser.SetLanguage(python.GetLanguage())
	p.jsParser.SetLanguage(javascript.GetLanguage())
	p.tsParser.SetLanguage(typescript.GetLanguage())
	p.rustParser.SetLanguage(rust.GetLanguage())
	return p
}

// Close releases all underlying parsers.
func (p *Parser) Close() {
	p.goParser.Close()
	p.pythonParser.Close()
	p.jsParser.Close()
	p.tsParser.Close()
	p.rustParser.Close()
}

func (p *Parser) parserFor(lang Language) *sitter.Parser {
	switch lang {
	case LangGo:
		return p.goParser
	case LangPython:
		return p.pythonParser
	case LangJavaScript:
		return p.jsParser
	case LangTypeScript:
		return p.tsParser
	case LangRust:
		return p.rustParser
	default:
		return nil
	}
}

// Parse runs the grammar for lang over content, returning the root node of
// the resulting tree. Callers must call tree.Close() when done with it.
func (p *Parser) Parse(ctx context.Context, lang Language, content []byte) (*sitter.Tree, error) {
	parser := p.parserFor(lang)
	if parser == nil {
		return nil, errUnsupportedLanguage(lang)
	}
	return parser.ParseCtx(ctx, nil, content)
}

type errUnsupportedLanguage Language

func (e errUnsupportedLanguage) Error() string {
	return "astparse: unsupported language: " + string(e)
}

// LanguageForPath is a convenience wrapper around LanguageForExt.
func LanguageForPath(path string) Language {
	return LanguageForExt(filepath.Ext(path))
}
