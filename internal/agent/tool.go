package agent

import (
	"context"
	"encoding/json"
)

// Tool is a built-in, in-process capability registered with the router.
// Externally-hosted MCP tools are wrapped to satisfy the same interface
// by internal/mcp (see RemoteTool there).
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}
