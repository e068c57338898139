package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/storyblok-agent/config"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/tools/mcp"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Param
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Param describes one argument of a tool. Type is a JSON schema type name.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolRegistry holds all available tools.
type ToolRegistry struct {
	tools      map[string]Tool
	order      []string
	mcpClients map[string]*mcp.MCPClient
}

// NewToolRegistry registers the content tools backed by content.
func NewToolRegistry(cfg *config.Config, content ContentSource) *ToolRegistry {
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
	}

	access := &cfg.ContentAccess
	r.Register(&GetStoryTool{content: content, access: access})
	r.Register(&ListStoriesTool{content: content})
	r.Register(&SearchStoriesTool{content: content})
	r.Register(&FilterStoriesTool{content: content})
	r.Register(&GetLinksTool{content: content})
	r.Register(&GetTagsTool{content: content})
	r.Register(NewExtractStoryTextTool(content, access))

	return r
}

// Register adds t, replacing any tool with the same name.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *ToolRegistry) All() []Tool {
	all := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.tools[name])
	}
	return all
}

// ConnectMCPServers starts every configured MCP server and registers its
// tools as "<server>_<tool>". Servers that fail to start are skipped and
// reported together in the returned error.
func (r *ToolRegistry) ConnectMCPServers(ctx context.Context, servers []config.MCPServer) error {
	var failed []string
	for _, srv := range servers {
		client, err := mcp.NewMCPClient(ctx, srv.Name, srv.Command, srv.Args)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", srv.Name, err))
			continue
		}
		r.addMCPClient(client)
	}
	if len(failed) > 0 {
		return errors.New("failed to start %d MCP server(s): %v", len(failed), failed)
	}
	return nil
}

func (r *ToolRegistry) addMCPClient(client *mcp.MCPClient) {
	r.mcpClients[client.Name] = client
	for _, info := range client.Tools() {
		r.Register(&MCPTool{client: client, info: info})
	}
}

// Close stops all MCP server subprocesses.
func (r *ToolRegistry) Close() error {
	var firstErr error
	names := make([]string, 0, len(r.mcpClients))
	for name := range r.mcpClients {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.mcpClients[name].Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.mcpClients, name)
	}
	return firstErr
}

// GetActiveTools returns the tool instances for a given toolset. Entries
// are tool names or doublestar patterns such as "*" or "get_*".
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var activeTools []Tool
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			activeTools = append(activeTools, r.tools[name])
		}
	}

	for _, entry := range ts.Tools {
		if _, ok := r.tools[entry]; ok {
			add(entry)
			continue
		}
		if !doublestar.ValidatePattern(entry) {
			return nil, fmt.Errorf("invalid tool pattern '%s' in toolset '%s'", entry, ts.Name)
		}
		matched := false
		for _, name := range r.order {
			if ok, _ := doublestar.Match(entry, name); ok {
				add(name)
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", entry, ts.Name)
		}
	}
	return activeTools, nil
}

// isSlugHidden checks if a slug matches any of the glob patterns.
func isSlugHidden(slug string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, slug)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
