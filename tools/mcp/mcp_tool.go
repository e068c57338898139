package mcp

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/m4xw311/storyblok-agent/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]ToolInfo // keyed by the server's own tool name
}

// ToolInfo describes one tool offered by an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	Params      []ParamInfo
}

// ParamInfo is one top-level property of a tool's input schema.
type ParamInfo struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// NewMCPClient starts the MCP server subprocess and initializes the client.
// It is responsible for discovering the tools provided by the server.
func NewMCPClient(ctx context.Context, name, command string, args []string) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	client, err := connect(ctx, name, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

func connect(ctx context.Context, name string, transport mcpsdk.Transport) (*MCPClient, error) {
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "storyblok-agent", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, transport)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &MCPClient{
		Name:  name,
		conn:  conn,
		tools: make(map[string]ToolInfo),
	}

	toolListParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, toolListParams)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range toolList.Tools {
			client.tools[t.Name] = toolInfo(t)
		}
		if toolList.NextCursor == "" {
			break
		}
		toolListParams.Cursor = toolList.NextCursor
	}
	return client, nil
}

func toolInfo(t *mcpsdk.Tool) ToolInfo {
	info := ToolInfo{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		return info
	}
	required := make(map[string]bool)
	for _, r := range t.InputSchema.Required {
		required[r] = true
	}
	for name, prop := range t.InputSchema.Properties {
		p := ParamInfo{Name: name, Type: "string", Required: required[name]}
		if prop != nil {
			p.Description = prop.Description
			if prop.Type != "" {
				p.Type = prop.Type
			}
		}
		info.Params = append(info.Params, p)
	}
	sort.Slice(info.Params, func(i, j int) bool { return info.Params[i].Name < info.Params[j].Name })
	return info
}

// Tools returns the server's tools sorted by name.
func (c *MCPClient) Tools() []ToolInfo {
	list := make([]ToolInfo, 0, len(c.tools))
	for _, t := range c.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// CallTool runs toolName on the server and concatenates its text content.
// A result flagged as an error is returned as a Go error.
func (c *MCPClient) CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	result, err := c.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on '%s'", toolName, c.Name)
	}
	var out strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			out.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' on '%s' failed: %s", toolName, c.Name, out.String())
	}
	return out.String(), nil
}

// Stop closes the session and terminates the MCP server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}
