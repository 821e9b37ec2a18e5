package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dinh2350/lunar/internal/memory"
)

const memoryFileName = "MEMORY.md"

// MemoryWriteTool appends a fact to permanent memory (MEMORY.md) or to the
// current day's notes file (memory/YYYY-MM-DD.md), per §6's persistent
// state layout, then re-indexes the written file so it is searchable
// without waiting for the next full walk (§5 index concurrency:
// memory_write is a writer under the index's single-writer discipline).
type MemoryWriteTool struct {
	workspace string
	indexer   *memory.Indexer
}

// NewMemoryWriteTool builds a memory_write tool scoped to a workspace root
// and the indexer that keeps the hybrid index in sync with it.
func NewMemoryWriteTool(workspace string, indexer *memory.Indexer) *MemoryWriteTool {
	return &MemoryWriteTool{workspace: workspace, indexer: indexer}
}

func (t *MemoryWriteTool) Name() string        { return "memory_write" }
func (t *MemoryWriteTool) Description() string { return "Writes a fact to long-term memory, either permanently or as a dated note." }

func (t *MemoryWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "key": {"type": "string", "description": "A short heading for the fact, e.g. \"name\"."},
    "content": {"type": "string", "description": "The fact to remember."},
    "permanent": {"type": "boolean", "description": "True to write to MEMORY.md; false for today's dated note. Defaults to false."}
  },
  "required": ["key", "content"]
}`)
}

func (t *MemoryWriteTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Key       string `json:"key"`
		Content   string `json:"content"`
		Permanent bool   `json:"permanent"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", err
	}
	if strings.TrimSpace(input.Key) == "" || strings.TrimSpace(input.Content) == "" {
		return "", fmt.Errorf("key and content are required")
	}

	path, err := t.appendFact(input.Key, input.Content, input.Permanent)
	if err != nil {
		return "", err
	}

	if t.indexer != nil {
		if _, err := t.indexer.IndexChanged(ctx, path); err != nil {
			return "", fmt.Errorf("re-index %s: %w", path, err)
		}
	}
	return fmt.Sprintf("remembered %q", input.Key), nil
}

func (t *MemoryWriteTool) appendFact(key, content string, permanent bool) (string, error) {
	var path string
	if permanent {
		path = filepath.Join(t.workspace, memoryFileName)
	} else {
		dir := filepath.Join(t.workspace, "memory")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create memory directory: %w", err)
		}
		path = filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".md")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	section := fmt.Sprintf("\n## %s\n\n%s\n", key, content)
	if _, err := f.WriteString(section); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
