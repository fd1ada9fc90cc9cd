// Package watch tails a capture run directory, reporting frame files as the
// data acquisition finishes writing them.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Event is one completed file (or error) coming from a Watcher.
type Event struct {
	// If set, an error occurred. Path is not valid.
	Err error

	// Path of a file that has settled: no writes for the settle interval.
	Path string
}

// Opts are options for a new watcher.
type Opts struct {
	// Suffix filters delivered files, e.g. ".pbf". Empty matches all.
	Suffix string

	// Settle is how long a file must go without writes before it is
	// considered complete. Defaults to 500ms.
	Settle time.Duration
}

// Watcher reports completed files in one directory.
type Watcher struct {
	events  chan Event
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// Dir watches dir for newly completed files. Files already present are not
// reported; only files written while watching.
//
// Callers must call Close to release the watcher.
func Dir(dir string, opts *Opts) (*Watcher, error) {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.Settle == 0 {
		o.Settle = 500 * time.Millisecond
	}

	if fi, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(err, "watching %s", dir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("watching %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "new file change watcher")
	}
	w := &Watcher{
		events:  make(chan Event, 8),
		watcher: fsw,
		done:    make(chan struct{}),
		pending: map[string]*time.Timer{},
	}

	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if o.Suffix != "" && !strings.HasSuffix(ev.Name, o.Suffix) {
					continue
				}
				w.touch(filepath.Clean(ev.Name), o.Settle)

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				select {
				case w.events <- Event{Err: errors.Wrap(err, "watching for changes")}:
				case <-w.done:
					return
				}
			}
		}
	}()

	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "registering watcher for %s", dir)
	}
	return w, nil
}

// Events returns the channel on which completed files are delivered.
func (w *Watcher) Events() chan Event {
	return w.events
}

// touch resets the settle timer for path; when it fires without further
// writes, the file is delivered as complete.
func (w *Watcher) touch(path string, settle time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(settle)
		return
	}
	w.pending[path] = time.AfterFunc(settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.events <- Event{Path: path}:
		case <-w.done:
		}
	})
}

// Close shuts down the watcher. No further events are delivered. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = nil
	w.mu.Unlock()
	return w.watcher.Close()
}
