package tools

import (
	"context"
	"regexp"

	"github.com/m4xw311/storyblok-agent/tools/mcp"
)

var unsafeToolChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// MCPTool exposes a tool of an external MCP server as a Tool.
type MCPTool struct {
	client *mcp.MCPClient
	info   mcp.ToolInfo
}

// Name returns "<server>_<tool>" restricted to characters every LLM API accepts.
func (t *MCPTool) Name() string {
	return unsafeToolChars.ReplaceAllString(t.client.Name+"_"+t.info.Name, "_")
}

func (t *MCPTool) Description() string { return t.info.Description }

func (t *MCPTool) Parameters() []Param {
	params := make([]Param, 0, len(t.info.Params))
	for _, p := range t.info.Params {
		params = append(params, Param{Name: p.Name, Type: p.Type, Description: p.Description, Required: p.Required})
	}
	return params
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return t.client.CallTool(ctx, t.info.Name, args)
}
