// Package watcher re-runs incremental indexing when files under the source
// directory change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/docrag-mcp/internal/converter"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// RunFunc performs one incremental index run.
type RunFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher coalesces filesystem events under a root directory into index runs.
type Watcher struct {
	root     string
	run      RunFunc
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a watcher for root. run is never called concurrently with itself.
func New(root string, run RunFunc, cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		root:     filepath.Clean(root),
		run:      run,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
}

// Watch blocks until ctx is cancelled. Run failures are logged and watching
// continues.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "dir", w.root, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fw, event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			w.logger.Info("changes detected, re-indexing", "dir", w.root)
			if err := w.run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("re-index failed", "error", err)
			}
		}
	}
}

// handleEvent reports whether event should schedule a run. Newly created
// directories are added to the watch.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if w.hidden(event.Name) {
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			// Files may have landed before the watch was added.
			return true
		}
	}

	if !converter.IsSupported(event.Name) {
		return false
	}
	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	return true
}

// hidden reports whether any path element below the root starts with a dot.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != w.root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
