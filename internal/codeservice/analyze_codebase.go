package codeservice

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

// maxCodebaseFiles and maxFileBytes are analyze_codebase's caps (spec §4.3:
// "Caps at 500 files and 1 MB per file").
const (
	maxCodebaseFiles = 500
	maxFileBytes     = 1 << 20
)

// AnalyzeCodebase implements analyze_codebase() (spec §4.3).
func (s *Service) AnalyzeCodebase() (model.CodebaseAnalysis, error) {
	result := model.CodebaseAnalysis{
		FileCountByLanguage: make(map[string]int),
	}
	dirSet := make(map[string]bool)
	depSeen := make(map[string]bool)

	filesVisited := 0
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != s.root && excludedDirs[info.Name()] {
				return filepath.SkipDir
			}
			if rel, relErr := filepath.Rel(s.root, path); relErr == nil && rel != "." {
				dirSet[rel] = true
			}
			return nil
		}

		if filesVisited >= maxCodebaseFiles {
			result.Truncated = true
			return nil
		}
		if info.Size() > maxFileBytes {
			result.Truncated = true
			return nil
		}

		filesVisited++
		ext := filepath.Ext(path)
		language := languageForExtension(ext)
		result.FileCountByLanguage[language]++

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		result.TotalLines += strings.Count(string(content), "\n") + 1

		for _, dep := range extractDependencies(language, string(content)) {
			key := dep.Source + ":" + dep.ImportPath
			if depSeen[key] {
				continue
			}
			depSeen[key] = true
			result.Dependencies = append(result.Dependencies, dep)
		}
		return nil
	})
	if err != nil {
		return model.CodebaseAnalysis{}, err
	}

	for dir := range dirSet {
		result.Directories = append(result.Directories, dir)
	}
	sort.Strings(result.Directories)
	return result, nil
}
