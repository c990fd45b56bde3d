package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sebvel/dolar-pipeline/internal/ingest/trigger"
	"github.com/sebvel/dolar-pipeline/internal/rates"
)

// Watcher ingests payload files dropped into a local spool directory. It is
// the offline counterpart of the bucket listener, mainly for development and
// for deployments without notification support.
type Watcher struct {
	dir    string
	loader trigger.Loader
}

// NewWatcher creates a Watcher processing dolar-*.json files in dir.
func NewWatcher(dir string, loader trigger.Loader) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("spool directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating spool directory: %v", err)
	}
	return &Watcher{dir: dir, loader: loader}, nil
}

// Run watches the spool directory until the context is canceled. Files
// already present at startup are processed first.
//
// Files are removed after a successful load. Failed files stay in place for
// inspection and are retried on the next restart.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %v", w.dir, err)
	}
	slog.Info("Watching spool directory", "dir", w.dir)

	w.sweep(ctx)

	// Debounce so a burst of writes triggers one sweep.
	const debounce = time.Second
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed unexpectedly")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case <-timer.C:
			w.sweep(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed unexpectedly")
			}
			slog.Error("Filesystem watcher error", "err", err)
		}
	}
}

// sweep processes every matching file currently in the spool directory.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		slog.Error("Failed to read spool directory", "dir", w.dir, "err", err)
		return
	}

	for _, e := range entries {
		if e.IsDir() || !trigger.RelevantKey(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		w.processFile(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	payload, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read spool file", "path", path, "err", err)
		return
	}

	entry, err := w.loader.Load(ctx, path, payload)
	switch {
	case errors.Is(err, rates.ErrStore):
		slog.Error("Store failure while loading spool file, leaving it in place", "path", path, "err", err)
		return
	case err != nil:
		slog.Warn("Spool file not loadable, leaving it in place", "path", path, "err", err)
		return
	}

	slog.Info("Loaded spool file", "path", path, "rows", entry.RowsInserted, "malformed", entry.Malformed)
	if err := os.Remove(path); err != nil {
		slog.Error("Failed to remove processed spool file", "path", path, "err", err)
	}
}
