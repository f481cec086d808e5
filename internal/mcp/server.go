package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer builds a real MCP server (github.com/mark3labs/mcp-go/server)
// exposing d's permitted tools, so the same code-service operations are
// reachable from standard MCP client transports in addition to the bespoke
// /api/mcp/* routes.
func NewServer(d *Dispatcher, name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version)

	for _, desc := range d.Allowed() {
		toolName := desc.Name
		opts := []gomcp.ToolOption{gomcp.WithDescription(desc.Description)}
		for arg := range desc.Args {
			opts = append(opts, gomcp.WithString(arg))
		}
		s.AddTool(gomcp.NewTool(toolName, opts...), func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
			args := map[string]any{}
			for k, v := range req.GetArguments() {
				args[k] = v
			}
			result, err := d.Call(ctx, toolName, args)
			if err != nil {
				return gomcp.NewToolResultError(err.Error()), nil
			}
			body, err := json.Marshal(result)
			if err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
			}
			return gomcp.NewToolResultText(string(body)), nil
		})
	}

	return s
}
