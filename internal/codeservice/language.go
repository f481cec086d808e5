package codeservice

import (
	"regexp"
	"strings"
)

// extensionLanguage is the closed extension->language table spec §4.3's
// analyze_file draws from.
var extensionLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".sh":    "shell",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".md":    "markdown",
	".html":  "html",
	".css":   "css",
}

func languageForExtension(ext string) string {
	if lang, ok := extensionLanguage[strings.ToLower(ext)]; ok {
		return lang
	}
	return "unknown"
}

// excludedDirs is the fixed exclusion set spec §4.3/§4.4 both reference:
// "skipping a fixed exclusion set (VCS dirs, build output, caches,
// virtual-env dirs, data dirs)". Grounded on explore_tools.go's skipDirs.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".venv":        true,
	"venv":         true,
	"env":          true,
	"data":         true,
	"datasets":     true,
	".cache":       true,
}

// importPattern is one per-language regex for dependency extraction, with
// its first capture group holding the imported module/path.
type importPattern struct {
	kind    string
	pattern *regexp.Regexp
}

var importPatternsByLanguage = map[string][]importPattern{
	"go": {
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*"([^"]+)"\s*$`)},
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*import\s+"([^"]+)"`)},
	},
	"python": {
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)},
		{kind: "from-import", pattern: regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`)},
	},
	"javascript": {
		{kind: "require", pattern: regexp.MustCompile(`require\(['"]([^'"]+)['"]\)`)},
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*import\s+.*?from\s+['"]([^'"]+)['"]`)},
	},
	"typescript": {
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*import\s+.*?from\s+['"]([^'"]+)['"]`)},
	},
	"rust": {
		{kind: "use", pattern: regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)`)},
	},
	"java": {
		{kind: "import", pattern: regexp.MustCompile(`(?m)^\s*import\s+([\w.]+);`)},
	},
	"ruby": {
		{kind: "require", pattern: regexp.MustCompile(`(?m)^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)},
	},
}

// stdlibAllowlist is the fixed per-language "is this a stdlib module, not an
// external dependency" table spec §4.3 requires for the is_external
// classification. It's intentionally small: a representative allowlist of
// the most common standard-library roots per language, not exhaustive.
var stdlibAllowlist = map[string]map[string]bool{
	"go": {
		"fmt": true, "os": true, "io": true, "strings": true, "strconv": true,
		"time": true, "context": true, "errors": true, "sync": true, "bytes": true,
		"bufio": true, "net": true, "net/http": true, "encoding/json": true,
		"path/filepath": true, "regexp": true, "sort": true, "math": true,
		"log": true, "testing": true,
	},
	"python": {
		"os": true, "sys": true, "re": true, "json": true, "time": true,
		"datetime": true, "collections": true, "itertools": true, "functools": true,
		"pathlib": true, "subprocess": true, "threading": true, "asyncio": true,
		"typing": true, "unittest": true, "logging": true, "math": true, "io": true,
	},
	"javascript": {
		"fs": true, "path": true, "http": true, "https": true, "os": true,
		"util": true, "events": true, "stream": true, "crypto": true, "url": true,
	},
	"typescript": {
		"fs": true, "path": true, "http": true, "https": true, "os": true,
		"util": true, "events": true, "stream": true, "crypto": true, "url": true,
	},
	"rust": {
		"std": true, "core": true, "alloc": true,
	},
	"java": {
		"java.lang": true, "java.util": true, "java.io": true, "java.nio": true,
		"java.net": true, "java.time": true,
	},
	"ruby": {
		"json": true, "set": true, "time": true, "date": true, "fileutils": true,
	},
}

// isExternalDependency classifies an import path per spec §4.3: "External =
// not a relative path and not in a stdlib allowlist."
func isExternalDependency(language, importPath string) bool {
	if strings.HasPrefix(importPath, ".") || strings.HasPrefix(importPath, "/") {
		return false
	}
	allowlist := stdlibAllowlist[language]
	if allowlist == nil {
		return true
	}
	if allowlist[importPath] {
		return false
	}
	// Prefix match for dotted stdlib roots, e.g. "java.util.List" under
	// "java.util", or a Go stdlib subpackage like "net/http/httptest".
	for root := range allowlist {
		if importPath == root || strings.HasPrefix(importPath, root+"/") || strings.HasPrefix(importPath, root+".") {
			return false
		}
	}
	return true
}
