package codeservice

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/arclight-labs/maker/internal/model"
)

const docExcerptWidth = 80

// SearchDocs implements search_docs(query) (spec §4.3): case-insensitive
// substring search over markdown in docs/ and the root README. It parses
// each file with goldmark and walks text nodes rather than raw bytes, so
// matches land on prose and code-span content rather than markdown
// punctuation.
func (s *Service) SearchDocs(query string) ([]model.DocMatch, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	var files []string
	for _, name := range []string{"README.md", "Readme.md", "readme.md"} {
		if p := filepath.Join(s.root, name); fileExists(p) {
			files = append(files, p)
			break
		}
	}

	docsDir := filepath.Join(s.root, "docs")
	_ = filepath.Walk(docsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})

	var matches []model.DocMatch
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(s.root, f)
		matches = append(matches, searchMarkdownFile(rel, content, query)...)
	}
	return matches, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func searchMarkdownFile(relPath string, content []byte, query string) []model.DocMatch {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	var matches []model.DocMatch
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		tn, ok := n.(*ast.Text)
		if !ok {
			return ast.WalkContinue, nil
		}

		segment := tn.Segment
		value := string(segment.Value(content))
		if strings.Contains(strings.ToLower(value), query) {
			line := 1 + strings.Count(string(content[:segment.Start]), "\n")
			matches = append(matches, model.DocMatch{
				File:    relPath,
				Line:    line,
				Excerpt: excerpt(value, query, docExcerptWidth),
			})
		}
		return ast.WalkContinue, nil
	})

	// Markdown parsing misses raw lines goldmark doesn't model as inline
	// text (table cells, headers rendered via ast.Heading without a Text
	// child in some edge cases); fall back to a raw line scan to guarantee
	// spec §4.3's "substring search" contract isn't narrower than advertised.
	if len(matches) == 0 {
		matches = append(matches, rawLineSearch(relPath, content, query)...)
	}
	return matches
}

func rawLineSearch(relPath string, content []byte, query string) []model.DocMatch {
	var matches []model.DocMatch
	for i, line := range strings.Split(string(content), "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			matches = append(matches, model.DocMatch{
				File:    relPath,
				Line:    i + 1,
				Excerpt: excerpt(line, query, docExcerptWidth),
			})
		}
	}
	return matches
}

func excerpt(value, query string, width int) string {
	lower := strings.ToLower(value)
	idx := strings.Index(lower, query)
	if idx < 0 {
		return strings.TrimSpace(value)
	}
	start := idx - width/2
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + width/2
	if end > len(value) {
		end = len(value)
	}
	return strings.TrimSpace(value[start:end])
}
