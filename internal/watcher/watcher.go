// Package watcher ingests dataset files dropped into watched directories.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Debounce absorbs the write bursts produced by copies of large CSV files; a
// file is ingested only after it has been quiet for this long.
const defaultDebounce = 500 * time.Millisecond

// Ingestor receives paths of dropped files that are ready to ingest.
type Ingestor interface {
	IngestFile(ctx context.Context, path string) error
}

// DropWatcher watches flat drop directories and ingests matching files as they
// appear. Directories are not walked recursively; a drop directory is a plain
// inbox, not a tree.
type DropWatcher struct {
	dirs        []string
	extensions  []string
	ingestor    Ingestor
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	logger      *zap.Logger
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// NewDropWatcher creates a watcher over dirs. extensions filters which files
// are ingested (empty matches nothing; a drop watcher without extensions would
// ingest partial downloads and editor temp files).
func NewDropWatcher(dirs, extensions []string, ingestor Ingestor, logger *zap.Logger) *DropWatcher {
	return &DropWatcher{
		dirs:        dirs,
		extensions:  extensions,
		ingestor:    ingestor,
		debounce:    defaultDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

// Start begins watching. Missing drop directories are created. The watcher
// runs until ctx is cancelled or Stop is called.
func (w *DropWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Info("Watching drop directories",
		zap.Strings("dirs", w.dirs),
		zap.Strings("extensions", w.extensions))
	go w.run(ctx)
	return nil
}

// SyncExisting ingests files already present in the drop directories. Call
// after Start to pick up files dropped while the service was down.
func (w *DropWatcher) SyncExisting(ctx context.Context) {
	for _, dir := range w.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn("Failed to read drop directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if w.matchExtension(path) {
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *DropWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("Watcher error", zap.Error(err))
			}
		}
	}
}

func (w *DropWatcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		if w.matchExtension(ev.Name) {
			w.debounceIngest(ctx, ev.Name)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
	}
}

func (w *DropWatcher) matchExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if ext == strings.TrimPrefix(strings.ToLower(e), ".") {
			return true
		}
	}
	return false
}

func (w *DropWatcher) debounceIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *DropWatcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *DropWatcher) ingest(ctx context.Context, path string) {
	w.logger.Info("Ingesting dropped file", zap.String("path", path))
	if err := w.ingestor.IngestFile(ctx, path); err != nil {
		w.logger.Error("Failed to ingest dropped file", zap.String("path", path), zap.Error(err))
		return
	}
	// A successfully ingested file leaves the inbox so restarts do not
	// re-ingest it.
	if err := os.Remove(path); err != nil {
		w.logger.Warn("Failed to remove ingested file", zap.String("path", path), zap.Error(err))
	}
}

// Directories returns the watched drop directories.
func (w *DropWatcher) Directories() []string {
	return append([]string(nil), w.dirs...)
}

// Stop stops the watcher and releases resources.
func (w *DropWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
