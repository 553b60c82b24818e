package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReportsNewStableFiles(t *testing.T) {
	dir := t.TempDir()

	// A file already in the inbox at startup must not be reported.
	preexisting := filepath.Join(dir, "old.vtt")
	if err := os.WriteFile(preexisting, []byte("WEBVTT\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reported := make(chan string, 10)
	w := NewPollWatcher(20*time.Millisecond, nil)
	w.OnFile(func(path string) { reported <- path })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, dir) }()

	// Give the baseline scan a moment, then drop a new file.
	time.Sleep(30 * time.Millisecond)
	newFile := filepath.Join(dir, "new.vtt")
	if err := os.WriteFile(newFile, []byte("WEBVTT\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case path := <-reported:
		if path != newFile {
			t.Errorf("reported %q, want %q", path, newFile)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("new file never reported")
	}

	// One report per file, even across later scans.
	select {
	case path := <-reported:
		t.Errorf("file %q reported twice", path)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}

// TestScanWaitsForStability drives scan directly so the write/report
// interleaving is deterministic.
func TestScanWaitsForStability(t *testing.T) {
	dir := t.TempDir()

	var reported []string
	w := NewPollWatcher(time.Second, nil)
	w.OnFile(func(path string) { reported = append(reported, path) })

	w.scan(dir, false) // baseline on an empty inbox

	growing := filepath.Join(dir, "upload.json")
	if err := os.WriteFile(growing, []byte("chunk"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.scan(dir, true) // first sighting, not reported yet
	if len(reported) != 0 {
		t.Fatal("file reported on first sighting")
	}

	// Still growing: size changed between scans.
	if err := os.WriteFile(growing, []byte("chunk chunk"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stamp := time.Now().Add(time.Millisecond)
	os.Chtimes(growing, stamp, stamp)
	w.scan(dir, true)
	if len(reported) != 0 {
		t.Fatal("file reported while still being written")
	}

	// Unchanged for one full scan: now it is stable.
	w.scan(dir, true)
	if len(reported) != 1 || reported[0] != growing {
		t.Fatalf("reported = %v, want exactly %q", reported, growing)
	}

	// Never reported twice.
	w.scan(dir, true)
	if len(reported) != 1 {
		t.Errorf("reported = %v, want one report", reported)
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	w := NewPollWatcher(time.Millisecond, nil)
	if err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("watching a missing directory should fail")
	}
}

func TestWatchIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()

	reported := make(chan string, 10)
	w := NewPollWatcher(20*time.Millisecond, nil)
	w.OnFile(func(path string) { reported <- path })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, dir)

	time.Sleep(30 * time.Millisecond)
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	select {
	case path := <-reported:
		t.Errorf("directory %q reported as a file", path)
	case <-time.After(100 * time.Millisecond):
	}
}
