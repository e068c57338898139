// Package mcpserver exposes the content tools to other agents over the
// Model Context Protocol.
package mcpserver

import (
	"context"

	"github.com/m4xw311/storyblok-agent/tools"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "storyblok-agent"

// NewServer returns an MCP server offering every tool in ts.
func NewServer(ts []tools.Tool, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	for _, t := range ts {
		mcp.AddTool(server, &mcp.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: inputSchema(t.Parameters()),
		}, handler(t))
	}
	return server
}

// Serve runs the server on transport until the client disconnects or ctx is done.
func Serve(ctx context.Context, ts []tools.Tool, version string, transport mcp.Transport) error {
	return NewServer(ts, version).Run(ctx, transport)
}

// handler reports tool failures as error results so the calling model sees them.
func handler(t tools.Tool) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		args := params.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out, err := t.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResultFor[any]{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

func inputSchema(params []tools.Param) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		prop := &jsonschema.Schema{Type: p.Type, Description: p.Description}
		if prop.Type == "" {
			prop.Type = "string"
		}
		if prop.Type == "array" {
			prop.Items = &jsonschema.Schema{Type: "string"}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}
