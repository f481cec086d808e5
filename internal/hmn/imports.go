package hmn

import (
	"regexp"

	"github.com/arclight-labs/maker/internal/astparse"
)

// importPatterns extracts {alias, path} pairs per language for the imports
// this package records as `imports` edges (spec §4.4 step 4) and uses to
// resolve qualified-external callees (step 3). Deliberately small: Go and
// Python, the two languages Ingest's call resolution is exercised against.
var importPatterns = map[astparse.Language]*regexp.Regexp{
	astparse.LangGo:     regexp.MustCompile(`(?m)^\s*(?:(\w+)\s+)?"([^"]+)"\s*$`),
	astparse.LangPython: regexp.MustCompile(`(?m)^\s*(?:import\s+([\w.]+)|from\s+([\w.]+)\s+import)`),
}

func extractImports(lang astparse.Language, content string) []fileImport {
	switch lang {
	case astparse.LangGo:
		var out []fileImport
		for _, m := range importPatterns[lang].FindAllStringSubmatch(content, -1) {
			path := m[2]
			alias := m[1]
			if alias == "" {
				alias = lastSegment(path)
			}
			out = append(out, fileImport{alias: alias, path: path})
		}
		return out

	case astparse.LangPython:
		var out []fileImport
		for _, m := range importPatterns[lang].FindAllStringSubmatch(content, -1) {
			path := m[1]
			if path == "" {
				path = m[2]
			}
			if path == "" {
				continue
			}
			out = append(out, fileImport{alias: lastSegment(path), path: path})
		}
		return out

	default:
		return nil
	}
}
