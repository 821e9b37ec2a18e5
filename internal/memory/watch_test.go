package memory

import (
	"context"
	"testing"
	"time"
)

func TestIndexerWatchPicksUpNewFile(t *testing.T) {
	root := t.TempDir()
	index := newTestIndex(t)
	ix := NewIndexer(root, index, DefaultChunkConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ix.Watch(ctx, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer ix.Close()

	writeFile(t, root, "live.md", "# Live\nwatched content")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, err := index.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the watcher to index the new file")
}

func TestIndexerCloseWithoutWatchIsSafe(t *testing.T) {
	ix := NewIndexer(t.TempDir(), newTestIndex(t), DefaultChunkConfig())
	if err := ix.Close(); err != nil {
		t.Fatalf("Close on an unwatched indexer: %v", err)
	}
}

func TestIndexerCloseStopsWatchLoop(t *testing.T) {
	ix := NewIndexer(t.TempDir(), newTestIndex(t), DefaultChunkConfig())

	if err := ix.Watch(context.Background(), nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
