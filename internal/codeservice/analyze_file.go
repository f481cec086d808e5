package codeservice

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

// AnalyzeFile implements analyze_file(path) (spec §4.3).
func (s *Service) AnalyzeFile(path string) (model.FileAnalysis, error) {
	full, err := s.resolvePath(path)
	if err != nil {
		return model.FileAnalysis{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return model.FileAnalysis{}, fmt.Errorf("codeservice: stat %s: %w", path, err)
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return model.FileAnalysis{}, fmt.Errorf("codeservice: read %s: %w", path, err)
	}

	ext := filepath.Ext(path)
	language := languageForExtension(ext)

	return model.FileAnalysis{
		Extension:    ext,
		Language:     language,
		Size:         info.Size(),
		LineCount:    strings.Count(string(content), "\n") + 1,
		LastModified: info.ModTime(),
		Dependencies: extractDependencies(language, string(content)),
	}, nil
}

// extractDependencies runs every import pattern registered for language
// over content, classifying each match external/internal per spec §4.3.
func extractDependencies(language, content string) []model.Dependency {
	patterns := importPatternsByLanguage[language]
	if len(patterns) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var deps []model.Dependency
	for _, p := range patterns {
		for _, match := range p.pattern.FindAllStringSubmatch(content, -1) {
			if len(match) < 2 {
				continue
			}
			importPath := match[1]
			key := p.kind + ":" + importPath
			if seen[key] {
				continue
			}
			seen[key] = true

			name := importPath
			if idx := strings.LastIndexAny(importPath, "/.:"); idx >= 0 && idx+1 < len(importPath) {
				name = importPath[idx+1:]
			}

			deps = append(deps, model.Dependency{
				Name:       name,
				Kind:       p.kind,
				Source:     language,
				ImportPath: importPath,
				IsExternal: isExternalDependency(language, importPath),
			})
		}
	}
	return deps
}
