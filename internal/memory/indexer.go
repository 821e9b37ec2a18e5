package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Indexer walks a workspace directory, re-chunking and re-embedding any
// markdown file whose modification time has advanced past the last time
// it was indexed (§4.C).
type Indexer struct {
	root   string
	index  *Index
	cfg    ChunkConfig
	mu     sync.Mutex
	lastMs map[string]int64 // filePath -> last-indexed mtime, in unix ms

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// NewIndexer builds an indexer rooted at a workspace directory.
func NewIndexer(root string, index *Index, cfg ChunkConfig) *Indexer {
	return &Indexer{
		root:   root,
		index:  index,
		cfg:    cfg,
		lastMs: make(map[string]int64),
	}
}

// IndexChanged re-indexes a single file if its mtime has moved past the
// last time it was indexed, returning whether it actually re-indexed. The
// memory_write builtin calls this directly so a written fact is searchable
// without waiting for the next full walk.
func (ix *Indexer) IndexChanged(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("memory: stat %s: %w", path, err)
	}
	mtimeMs := info.ModTime().UnixMilli()

	ix.mu.Lock()
	last, seen := ix.lastMs[path]
	ix.mu.Unlock()
	if seen && mtimeMs <= last {
		return false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("memory: read %s: %w", path, err)
	}

	relPath, err := filepath.Rel(ix.root, path)
	if err != nil {
		relPath = path
	}

	if err := ix.index.DeleteByFilePath(ctx, relPath); err != nil {
		return false, err
	}
	chunks := ChunkMarkdown(relPath, string(content), ix.cfg)
	if len(chunks) > 0 {
		if err := ix.index.InsertChunks(ctx, chunks); err != nil {
			return false, err
		}
	}

	ix.mu.Lock()
	ix.lastMs[path] = mtimeMs
	ix.mu.Unlock()
	return true, nil
}

// IndexAll clears the last-indexed map and walks every *.md file under
// root, re-indexing all of them, and returns the count re-indexed. Unlike
// IndexChanged, it never skips a file on the strength of a prior pass.
func (ix *Indexer) IndexAll(ctx context.Context) (int, error) {
	ix.mu.Lock()
	ix.lastMs = make(map[string]int64)
	ix.mu.Unlock()

	var reindexed int
	err := filepath.WalkDir(ix.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		changed, err := ix.IndexChanged(ctx, path)
		if err != nil {
			return err
		}
		if changed {
			reindexed++
		}
		return nil
	})
	if err != nil {
		return reindexed, fmt.Errorf("memory: index workspace: %w", err)
	}
	return reindexed, nil
}
