package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 300 * time.Millisecond

// Watcher reloads a Table when its policy file changes on disk.
type Watcher struct {
	table    *Table
	path     string
	logger   *slog.Logger
	onReload func(Loaded)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. onReload may be nil.
func NewWatcher(table *Table, path string, onReload func(Loaded)) *Watcher {
	return &Watcher{
		table:    table,
		path:     filepath.Clean(path),
		logger:   slog.Default(),
		onReload: onReload,
	}
}

// SetLogger replaces the logger used for reload reports. Nil is ignored.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Start blocks until ctx is done. The parent directory is watched because
// editors commonly replace files by rename.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("policy watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// reload keeps the current table when the file is malformed.
func (w *Watcher) reload() {
	loaded, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping current table", "path", w.path, "error", err)
		return
	}
	if err := w.table.ReloadLoaded(loaded); err != nil {
		w.logger.Error("policy reload rejected, keeping current table", "path", w.path, "error", err)
		return
	}
	if overridden := loaded.Overridden(); len(overridden) > 0 {
		w.logger.Warn("policy file rules replaced by built-in veto", "tools", overridden)
	}
	w.logger.Info("policy reloaded", "path", w.path, "digest", loaded.Digest)
	if w.onReload != nil {
		w.onReload(loaded)
	}
}
