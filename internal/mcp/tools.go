// Package mcp exposes the code service's operations as a tool set reachable
// two ways (spec §6): a literal MCP server (github.com/mark3labs/mcp-go) for
// standard MCP client transports, and bespoke /api/mcp/* REST routes for
// callers that don't speak MCP. Both paths dispatch through the same
// Dispatcher so the allow/block permission layer only has to be applied once.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arclight-labs/maker/internal/codeservice"
)

// ToolDescriptor is what GET /api/mcp/tools lists and what NewServer
// registers as the MCP server's tools.
type ToolDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Args        map[string]string `json:"args"` // arg name -> human-readable type/description
}

// Dispatcher maps tool names to C3 code service operations.
type Dispatcher struct {
	code  *codeservice.Service
	perms *Permissions
}

func NewDispatcher(code *codeservice.Service, perms *Permissions) *Dispatcher {
	return &Dispatcher{code: code, perms: perms}
}

var descriptors = []ToolDescriptor{
	{Name: "read_file", Description: "Read a source file, optionally chunked.", Args: map[string]string{"path": "string", "chunked": "bool"}},
	{Name: "analyze_file", Description: "Report a file's extension, language, size, line count, modification time and dependencies.", Args: map[string]string{"path": "string"}},
	{Name: "analyze_codebase", Description: "Summarize the codebase: file/language counts, directory tree, dependencies.", Args: map[string]string{}},
	{Name: "find_references", Description: "Find all call sites of a symbol.", Args: map[string]string{"symbol": "string"}},
	{Name: "find_callers", Description: "Find the hierarchical memory network's callers of a symbol.", Args: map[string]string{"symbol": "string"}},
	{Name: "impact_analysis", Description: "Find everything downstream of a symbol if it changes.", Args: map[string]string{"symbol": "string"}},
	{Name: "search_docs", Description: "Search the markdown in docs/ and the root README.", Args: map[string]string{"query": "string"}},
	{Name: "git_diff", Description: "Show the working tree's diff for a file, or the whole tree if empty.", Args: map[string]string{"file": "string"}},
	{Name: "run_tests", Description: "Run the test suite, optionally scoped to one file.", Args: map[string]string{"test_file": "string"}},
}

// Descriptors returns every tool this deployment could expose, before
// permission filtering — callers that need the allowed subset should use
// Allowed instead.
func Descriptors() []ToolDescriptor { return descriptors }

// Allowed returns only the tools perms permits.
func (d *Dispatcher) Allowed() []ToolDescriptor {
	var out []ToolDescriptor
	for _, desc := range descriptors {
		if d.perms.Allows(desc.Name) {
			out = append(out, desc)
		}
	}
	return out
}

// Call dispatches one tool invocation by name, enforcing the permission
// layer first (spec §6: "blocklist wins; missing allowlist means all
// allowed").
func (d *Dispatcher) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	if !d.perms.Allows(tool) {
		return nil, fmt.Errorf("mcp: tool %q is not permitted", tool)
	}

	switch tool {
	case "read_file":
		path, _ := args["path"].(string)
		chunked, _ := args["chunked"].(bool)
		return d.code.ReadFile(ctx, path, chunked)
	case "analyze_file":
		path, _ := args["path"].(string)
		return d.code.AnalyzeFile(path)
	case "analyze_codebase":
		return d.code.AnalyzeCodebase()
	case "find_references":
		symbol, _ := args["symbol"].(string)
		return d.code.FindReferences(ctx, symbol)
	case "find_callers":
		symbol, _ := args["symbol"].(string)
		return d.code.FindCallers(symbol), nil
	case "impact_analysis":
		symbol, _ := args["symbol"].(string)
		return d.code.ImpactAnalysis(symbol), nil
	case "search_docs":
		query, _ := args["query"].(string)
		return d.code.SearchDocs(query)
	case "git_diff":
		file, _ := args["file"].(string)
		return d.code.GitDiff(ctx, file)
	case "run_tests":
		testFile, _ := args["test_file"].(string)
		return d.code.RunTests(ctx, testFile)
	default:
		return nil, fmt.Errorf("mcp: unknown tool %q", tool)
	}
}

// argsFromJSON decodes a raw JSON args object into the map Call expects.
func argsFromJSON(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("mcp: decoding tool args: %w", err)
	}
	return args, nil
}
