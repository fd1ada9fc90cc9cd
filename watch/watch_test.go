package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestCompletedFileDelivered(t *testing.T) {
	dir := t.TempDir()
	w, err := Dir(dir, &Opts{Suffix: ".pbf", Settle: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "run0.pbf")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	// A file with the wrong suffix must not be delivered.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Err != nil {
			t.Fatalf("event error: %v", ev.Err)
		}
		if ev.Path != path {
			t.Fatalf("event path, got %q, expected %q", ev.Path, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for completed file")
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSettleWaitsForWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := Dir(dir, &Opts{Settle: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "run0.pbf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Keep writing inside the settle window; delivery must wait for quiet.
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Write([]byte("chunk")); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(60 * time.Millisecond)
	}
	f.Close()

	select {
	case ev := <-w.Events():
		if ev.Err != nil {
			t.Fatalf("event error: %v", ev.Err)
		}
		if since := time.Since(start); since < 150*time.Millisecond {
			t.Fatalf("file delivered after %v, before writes settled", since)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for settled file")
	}
}

func TestWatchErrors(t *testing.T) {
	if _, err := Dir(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatalf("missing error for nonexistent directory")
	}

	file := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := Dir(file, nil); err == nil {
		t.Fatalf("missing error for watching a plain file")
	}
}

// Close must release delivery goroutines even when more files have settled
// than the event channel can buffer and nobody is reading.
func TestCloseReleasesUndeliveredEvents(t *testing.T) {
	before := runtime.NumGoroutine()

	dir := t.TempDir()
	w, err := Dir(dir, &Opts{Settle: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	for i := 0; i < 12; i++ {
		path := filepath.Join(dir, fmt.Sprintf("run%d.pbf", i))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
	}
	// Let every settle timer fire; the channel holds 8, the rest would
	// block without a reader.
	time.Sleep(200 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > before {
		t.Fatalf("%d goroutines still running after close, started with %d", n, before)
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := Dir(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
