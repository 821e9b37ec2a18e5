package builtins

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dinh2350/lunar/internal/memory"
	"github.com/dinh2350/lunar/internal/memory/backend/sqlitevec"
	"github.com/dinh2350/lunar/pkg/models"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string      { return "fake" }
func (fakeEmbedder) Dimension() int    { return 2 }
func (fakeEmbedder) MaxBatchSize() int { return 8 }

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha1.Sum([]byte(text))
	return []float32{float32(sum[0]) / 255, float32(sum[1]) / 255}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func newTestIndex(t *testing.T) *memory.Index {
	t.Helper()
	b, err := sqlitevec.New(sqlitevec.Config{Dimension: 2})
	if err != nil {
		t.Fatalf("sqlitevec.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return memory.NewIndex(b, fakeEmbedder{}, 0, 0)
}

func TestTimeTool(t *testing.T) {
	out, err := TimeTool{}.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out == "" {
		t.Fatalf("expected a non-empty timestamp")
	}
}

func TestTimeToolInvalidTimezone(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"timezone": "Not/AZone"})
	if _, err := (TimeTool{}).Execute(context.Background(), args); err == nil {
		t.Fatalf("expected an error for an unknown timezone")
	}
}

func TestCalculatorTool(t *testing.T) {
	cases := map[string]string{
		`{"expression":"(3 + 4) * 2"}`: "14",
		`{"expression":"10 / 4"}`:      "2.5",
		`{"expression":"7 % 3"}`:       "1",
	}
	for args, want := range cases {
		got, err := (CalculatorTool{}).Execute(context.Background(), json.RawMessage(args))
		if err != nil {
			t.Fatalf("Execute(%s): %v", args, err)
		}
		if got != want {
			t.Fatalf("Execute(%s) = %q, want %q", args, got, want)
		}
	}
}

func TestCalculatorToolDivisionByZero(t *testing.T) {
	args := json.RawMessage(`{"expression":"1 / 0"}`)
	if _, err := (CalculatorTool{}).Execute(context.Background(), args); err == nil {
		t.Fatalf("expected a division-by-zero error")
	}
}

func TestReadFileToolRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadFileTool(dir, 0)
	args, _ := json.Marshal(map[string]string{"path": "../etc/passwd"})
	if _, err := tool.Execute(context.Background(), args); err == nil {
		t.Fatalf("expected an error for a path escaping the workspace")
	}
}

func TestReadFileToolReadsWithinWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tool := NewReadFileTool(dir, 0)
	args, _ := json.Marshal(map[string]string{"path": "note.txt"})
	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("Execute() = %q", out)
	}
}

func TestListDirectoryTool(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644)
	os.Mkdir(filepath.Join(dir, "a_dir"), 0o755)

	tool := NewListDirectoryTool(dir)
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "a_dir/") || !strings.Contains(out, "b.txt") {
		t.Fatalf("Execute() = %q", out)
	}
}

func TestMemorySearchTool(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	if err := ix.InsertChunks(ctx, []models.Chunk{{ID: "a:0", FilePath: "a.md", Content: "my name is Ada"}}); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	tool := NewMemorySearchTool(ix, 5)
	args, _ := json.Marshal(map[string]string{"query": "name"})
	out, err := tool.Execute(ctx, args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Ada") {
		t.Fatalf("Execute() = %q, expected to find Ada", out)
	}
}

func TestMemoryWriteToolPermanent(t *testing.T) {
	dir := t.TempDir()
	ix := newTestIndex(t)
	indexer := memory.NewIndexer(dir, ix, memory.ChunkConfig{})
	tool := NewMemoryWriteTool(dir, indexer)

	args, _ := json.Marshal(map[string]any{"key": "name", "content": "Ada", "permanent": true})
	if _, err := tool.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "MEMORY.md"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "## name") || !strings.Contains(string(data), "Ada") {
		t.Fatalf("MEMORY.md = %q", data)
	}

	results, err := ix.HybridSearch(context.Background(), "Ada", 5)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected memory_write to re-index MEMORY.md so it is searchable")
	}
}

func TestMemoryWriteToolDailyNote(t *testing.T) {
	dir := t.TempDir()
	ix := newTestIndex(t)
	indexer := memory.NewIndexer(dir, ix, memory.ChunkConfig{})
	tool := NewMemoryWriteTool(dir, indexer)

	args, _ := json.Marshal(map[string]any{"key": "todo", "content": "buy milk"})
	if _, err := tool.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "memory"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one dated note file, got %d", len(entries))
	}
}
