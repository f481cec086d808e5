package codeservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/model"
)

// FindReferences implements find_references(symbol) (spec §4.3): for Python
// files, walks the syntax tree and classifies each occurrence as definition
// or reference; for other files, word-boundary regex. Always scoped to the
// codebase root, always excludes the standard exclusion set.
func (s *Service) FindReferences(ctx context.Context, symbol string) ([]model.SymbolReference, error) {
	if symbol == "" {
		return nil, fmt.Errorf("codeservice: symbol is required")
	}
	wordBoundary := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)

	var out []model.SymbolReference
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != s.root && excludedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			rel = path
		}

		if astparse.LanguageForPath(path) == astparse.LangPython {
			refs, parseErr := s.parser.FindReferencesPython(ctx, content, symbol)
			if parseErr == nil {
				for _, r := range refs {
					out = append(out, model.SymbolReference{File: rel, Line: r.Line, IsDefinition: r.IsDefinition})
				}
				return nil
			}
			// Fall through to regex on a parse failure.
		}

		for i, line := range strings.Split(string(content), "\n") {
			if wordBoundary.MatchString(line) {
				out = append(out, model.SymbolReference{
					File:         rel,
					Line:         i + 1,
					IsDefinition: looksLikeDefinitionLine(line, symbol),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// looksLikeDefinitionLine is the word-boundary-regex path's cheap
// definition heuristic for non-Python files: a line that starts with a
// recognised declaration keyword and contains symbol anywhere on it.
var definitionKeyword = regexp.MustCompile(`^\s*(func|def|class|type|struct|interface|fn|function|const|var|let)\s`)

func looksLikeDefinitionLine(line, symbol string) bool {
	return definitionKeyword.MatchString(line) && strings.Contains(line, symbol)
}
