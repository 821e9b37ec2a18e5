package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIndexerIndexAllFindsMarkdownFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.md", "# Notes\nsome content here")
	writeFile(t, root, "ignored.txt", "not markdown")

	ix := NewIndexer(root, newTestIndex(t), DefaultChunkConfig())
	n, err := ix.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("reindexed = %d, want 1", n)
	}
}

func TestIndexAllAlwaysReindexesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.md", "# Notes\nsome content here")

	ix := NewIndexer(root, newTestIndex(t), DefaultChunkConfig())
	ctx := context.Background()

	n1, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll (1): %v", err)
	}
	if n1 != 1 {
		t.Fatalf("first pass reindexed = %d, want 1", n1)
	}

	n2, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll (2): %v", err)
	}
	if n2 != 1 {
		t.Fatalf("second pass reindexed = %d, want 1 (IndexAll always clears and re-indexes)", n2)
	}
}

func TestIndexChangedSkipsUnchangedFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "notes.md", "# Notes\nsome content here")

	ix := NewIndexer(root, newTestIndex(t), DefaultChunkConfig())
	ctx := context.Background()

	changed1, err := ix.IndexChanged(ctx, path)
	if err != nil {
		t.Fatalf("IndexChanged (1): %v", err)
	}
	if !changed1 {
		t.Fatalf("first call should have indexed the new file")
	}

	changed2, err := ix.IndexChanged(ctx, path)
	if err != nil {
		t.Fatalf("IndexChanged (2): %v", err)
	}
	if changed2 {
		t.Fatalf("second call should have skipped the unchanged file")
	}
}

func TestIndexerReindexesOnModification(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "notes.md", "# Notes\noriginal content")

	ix := NewIndexer(root, newTestIndex(t), DefaultChunkConfig())
	ctx := context.Background()
	if _, err := ix.IndexAll(ctx); err != nil {
		t.Fatalf("IndexAll (1): %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.WriteFile(path, []byte("# Notes\nupdated content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	n, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll (2): %v", err)
	}
	if n != 1 {
		t.Fatalf("reindexed = %d, want 1 after modification", n)
	}
}

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}
