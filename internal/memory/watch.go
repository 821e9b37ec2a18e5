package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watch starts an fsnotify watcher over the workspace tree so the index
// reacts to edits between IndexAll walks, without polling. Every create/
// write/rename under root funnels through the same IndexChanged path
// IndexAll itself uses — this is a faster trigger, not a second index
// implementation. Watch returns once the watcher is installed; the watch
// loop itself runs in a background goroutine until ctx is cancelled or
// Close is called.
func (ix *Indexer) Watch(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.watcher = watcher
	ix.mu.Unlock()

	if err := addWatchDirs(watcher, ix.root); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ix.mu.Lock()
	ix.watchCancel = cancel
	ix.mu.Unlock()

	ix.watchWg.Add(1)
	go ix.watchLoop(watchCtx, watcher, logger)
	return nil
}

// Close stops any active watch loop started by Watch. Safe to call even if
// Watch was never called.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	watcher := ix.watcher
	ix.watcher = nil
	cancel := ix.watchCancel
	ix.watchCancel = nil
	ix.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	ix.watchWg.Wait()
	return err
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (ix *Indexer) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, logger *slog.Logger) {
	defer ix.watchWg.Done()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Stop()
		}
		timers[path] = time.AfterFunc(defaultWatchDebounce, func() {
			if _, err := ix.IndexChanged(context.Background(), path); err != nil {
				logger.Warn("watch-triggered reindex failed", "path", path, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			schedule(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("memory index watcher error", "error", err)
		}
	}
}
