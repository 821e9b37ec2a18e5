package memory

import (
	"context"
	"crypto/sha1"
	"testing"

	"github.com/dinh2350/lunar/internal/memory/backend/sqlitevec"
	"github.com/dinh2350/lunar/pkg/models"
)

// fakeEmbedder derives a deterministic 2-dimensional embedding from the
// hash of the text's first word, so related texts score higher without
// needing a real embedding model in tests.
type fakeEmbedder struct{}

func (fakeEmbedder) Name() string     { return "fake" }
func (fakeEmbedder) Dimension() int   { return 2 }
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

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	b, err := sqlitevec.New(sqlitevec.Config{Dimension: 2})
	if err != nil {
		t.Fatalf("sqlitevec.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return NewIndex(b, fakeEmbedder{}, 0, 0)
}

func TestIndexInsertAndSearchLexical(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	chunks := []models.Chunk{
		{ID: "a:0", FilePath: "a.md", Content: "hybrid retrieval memory design"},
		{ID: "b:0", FilePath: "b.md", Content: "totally different subject matter"},
	}
	if err := ix.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	results, err := ix.SearchLexical(ctx, "hybrid retrieval", 10)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a:0" {
		t.Fatalf("results = %+v, want only a:0", results)
	}
}

func TestIndexDeleteByFilePath(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.InsertChunks(ctx, []models.Chunk{{ID: "a:0", FilePath: "a.md", Content: "x"}}); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}
	if err := ix.DeleteByFilePath(ctx, "a.md"); err != nil {
		t.Fatalf("DeleteByFilePath: %v", err)
	}
	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestIndexHybridSearchReturnsResults(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	chunks := []models.Chunk{
		{ID: "a:0", FilePath: "a.md", Content: "hybrid retrieval memory design"},
		{ID: "b:0", FilePath: "b.md", Content: "totally different subject matter"},
	}
	if err := ix.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	results, err := ix.HybridSearch(ctx, "hybrid retrieval", 10)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results")
	}
}
