package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dinh2350/lunar/internal/memory"
)

// MemorySearchTool wraps the hybrid index's search for the agent loop
// (§4.B, §4.E).
type MemorySearchTool struct {
	index      *memory.Index
	maxResults int
}

// NewMemorySearchTool builds a memory_search tool over an already-open
// index.
func NewMemorySearchTool(index *memory.Index, maxResults int) *MemorySearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &MemorySearchTool{index: index, maxResults: maxResults}
}

func (t *MemorySearchTool) Name() string        { return "memory_search" }
func (t *MemorySearchTool) Description() string { return "Searches long-term memory (MEMORY.md and daily notes) for a query." }

func (t *MemorySearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Search query."},
    "max_results": {"type": "integer", "minimum": 1, "description": "Maximum number of results to return."}
  },
  "required": ["query"]
}`)
}

func (t *MemorySearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", err
	}
	if strings.TrimSpace(input.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := t.maxResults
	if input.MaxResults > 0 {
		limit = input.MaxResults
	}

	results, err := t.index.HybridSearch(ctx, input.Query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "no matching memory found", nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, r.FilePath, strings.TrimSpace(r.Content))
	}
	return sb.String(), nil
}
