package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// remoteTool wraps one MCP server's tool to satisfy internal/agent.Tool,
// namespaced as mcp_{serverName}_{toolName} so it can never collide with a
// builtin tool name (§4.F).
type remoteTool struct {
	manager    *Manager
	serverName string
	tool       *MCPTool
}

// NamespacedName builds the mcp_{serverName}_{toolName} tool name.
func NamespacedName(serverName, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", serverName, toolName)
}

// ParseNamespacedName splits an mcp_{serverName}_{toolName} name back into
// its parts. ok is false if name isn't in that form.
func ParseNamespacedName(name string) (serverName, toolName string, ok bool) {
	const prefix = "mcp_"
	if !strings.HasPrefix(name, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, prefix)
	idx := strings.Index(rest, "_")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func (t *remoteTool) Name() string                { return NamespacedName(t.serverName, t.tool.Name) }
func (t *remoteTool) Description() string          { return t.tool.Description }
func (t *remoteTool) Parameters() json.RawMessage  { return t.tool.InputSchema }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("mcp: decode arguments for %s: %w", t.Name(), err)
		}
	}

	result, err := t.manager.CallTool(ctx, t.serverName, t.tool.Name, arguments)
	if err != nil {
		return "", fmt.Errorf("mcp: call %s: %w", t.Name(), err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp: %s reported an error: %s", t.Name(), concatText(result.Content))
	}
	return concatText(result.Content), nil
}

func concatText(content []ToolResultContent) string {
	var b strings.Builder
	for _, c := range content {
		if c.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// RemoteTools returns every connected server's tools, wrapped and
// namespaced, ready to register with internal/agent's Router.
func RemoteTools(mgr *Manager) []*remoteTool {
	var tools []*remoteTool
	for serverName, serverTools := range mgr.AllTools() {
		for _, tool := range serverTools {
			tools = append(tools, &remoteTool{manager: mgr, serverName: serverName, tool: tool})
		}
	}
	return tools
}
