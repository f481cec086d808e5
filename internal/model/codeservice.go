package model

import "time"

// CodeChunk is one semantic unit of a chunked read_file response (spec
// §4.3): either a parsed top-level function/class span, or (for
// non-parseable files) a fixed-size line range.
type CodeChunk struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// FileRead is read_file's result: either Text alone (file under the
// chunking threshold, or chunked not requested) or Chunks alone.
type FileRead struct {
	Text    string      `json:"text,omitempty"`
	Chunks  []CodeChunk `json:"chunks,omitempty"`
	Chunked bool        `json:"chunked"`
}

// Dependency is one import/require dependency discovered by analyze_file,
// per spec §4.3 "{name, kind, source, import_path, is_external}".
type Dependency struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"` // "import", "require", "use", ...
	Source     string `json:"source"`
	ImportPath string `json:"import_path"`
	IsExternal bool   `json:"is_external"`
}

// FileAnalysis is analyze_file's result.
type FileAnalysis struct {
	Extension    string       `json:"extension"`
	Language     string       `json:"language"`
	Size         int64        `json:"size"`
	LineCount    int          `json:"line_count"`
	LastModified time.Time    `json:"last_modified"`
	Dependencies []Dependency `json:"dependencies"`
}

// CodebaseAnalysis is analyze_codebase's result.
type CodebaseAnalysis struct {
	FileCountByLanguage map[string]int `json:"file_count_by_language"`
	Directories         []string       `json:"directories"`
	TotalLines           int          `json:"total_lines"`
	Dependencies         []Dependency `json:"dependencies"`
	Truncated            bool         `json:"truncated"`
}

// DocMatch is one search_docs hit.
type DocMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Excerpt string `json:"excerpt"`
}

// SymbolReference is one find_references hit.
type SymbolReference struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	IsDefinition bool   `json:"is_definition"`
}

// SubprocessResult is git_diff/run_tests' result (spec §4.3).
type SubprocessResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}
