package hmn

import (
	"strings"

	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/model"
)

// stdlibAllowlist is the fixed "is this callee a standard-library symbol"
// table spec §4.4 step 3 requires, grounded on
// original_source/orchestrator/code_graph.py's add_call STDLIB set,
// extended with a Go entry since this module's own codebase is Go.
var stdlibAllowlist = map[astparse.Language]map[string]bool{
	astparse.LangPython: {
		"os": true, "sys": true, "json": true, "time": true, "logging": true,
		"pathlib": true, "typing": true, "asyncio": true, "collections": true,
		"functools": true, "itertools": true, "re": true, "hashlib": true,
		"dataclasses": true, "enum": true,
	},
	astparse.LangGo: {
		"fmt": true, "os": true, "io": true, "strings": true, "strconv": true,
		"time": true, "context": true, "errors": true, "sync": true, "bytes": true,
		"sort": true, "log": true,
	},
}

// resolveCallee classifies one call site per spec §4.4 step 3: "Each
// unqualified callee is resolved: qualified internal (exists as an L1 in
// the same file), qualified external (originates from a recorded import),
// stdlib (member of a fixed allowlist), or local-to-file (fallback)."
// Grounded on code_graph.py's add_call, refined with an actual same-file L1
// existence check rather than assuming every bare name is local.
func resolveCallee(lang astparse.Language, call astparse.CallSite, fileEntityNames map[string]bool, fileImports []fileImport) (calleeID string, tag model.CalleeTag) {
	if call.Qualifier == "" {
		if fileEntityNames[call.Callee] {
			return call.Callee, model.CalleeInternal
		}
		if stdlibAllowlist[lang][call.Callee] {
			return call.Callee, model.CalleeStdlib
		}
		return call.Callee, model.CalleeLocal
	}

	for _, imp := range fileImports {
		if imp.alias == call.Qualifier || lastSegment(imp.path) == call.Qualifier {
			return imp.path + "." + call.Callee, model.CalleeExternal
		}
	}

	qualifiedName := call.Qualifier + "." + call.Callee
	if fileEntityNames[qualifiedName] || fileEntityNames[call.Callee] {
		return qualifiedName, model.CalleeInternal
	}
	if stdlibAllowlist[lang][call.Qualifier] {
		return qualifiedName, model.CalleeStdlib
	}
	// A dotted call with no recorded import and no in-file definition is
	// assumed external, matching code_graph.py's "'.' in callee -> external
	// module call" default.
	return qualifiedName, model.CalleeExternal
}

func lastSegment(path string) string {
	if path == "" {
		return ""
	}
	sep := "/"
	if strings.Contains(path, "::") {
		sep = "::"
	} else if strings.Contains(path, ".") && !strings.Contains(path, "/") {
		sep = "."
	}
	parts := strings.Split(path, sep)
	return parts[len(parts)-1]
}

// fileImport is one import recorded for a file during ingest, used to
// resolve qualified-external callees.
type fileImport struct {
	alias string
	path  string
}
