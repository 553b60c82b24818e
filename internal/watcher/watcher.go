// Package watcher watches an inbox directory for annotation files and
// hands stable new arrivals to a callback. The implementation polls
// modification times rather than using OS-level notification so it works
// identically across platforms and network mounts.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type Watcher interface {
	Watch(ctx context.Context, path string) error
	OnFile(callback func(path string))
}

// PollWatcher scans a directory on an interval. A file is reported once,
// and only after its size and mtime have stopped changing for one full
// interval, so half-written uploads are not ingested.
type PollWatcher struct {
	logger   *slog.Logger
	interval time.Duration
	callback func(path string)

	seen map[string]fileState
}

type fileState struct {
	size     int64
	modTime  time.Time
	stable   bool
	reported bool
}

func NewPollWatcher(interval time.Duration, logger *slog.Logger) *PollWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollWatcher{
		logger:   logger,
		interval: interval,
		seen:     make(map[string]fileState),
	}
}

func (w *PollWatcher) OnFile(callback func(path string)) {
	w.callback = callback
}

// Watch polls path until the context is cancelled. Files present at
// startup are treated as already handled; only later arrivals fire the
// callback.
func (w *PollWatcher) Watch(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	// Baseline scan: everything already in the inbox is old news.
	w.scan(path, false)

	if w.logger != nil {
		w.logger.Info("watching inbox", "path", path, "interval", w.interval.String())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if w.logger != nil {
				w.logger.Info("inbox watcher stopping")
			}
			return ctx.Err()
		case <-ticker.C:
			w.scan(path, true)
		}
	}
}

func (w *PollWatcher) scan(dir string, report bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("inbox scan failed", "error", err)
		}
		return
	}

	current := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		current[full] = true

		prev, known := w.seen[full]
		state := fileState{size: info.Size(), modTime: info.ModTime()}

		if !report {
			state.reported = true
			w.seen[full] = state
			continue
		}

		switch {
		case !known:
			w.seen[full] = state
		case prev.reported:
			state.reported = true
			w.seen[full] = state
		case prev.size == state.size && prev.modTime.Equal(state.modTime):
			state.reported = true
			w.seen[full] = state
			if w.callback != nil {
				w.callback(full)
			}
		default:
			// Still being written; wait another interval.
			w.seen[full] = state
		}
	}

	for path := range w.seen {
		if !current[path] {
			delete(w.seen, path)
		}
	}
}
