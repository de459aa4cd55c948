// internal/watcher/watcher.go
package watcher

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change seen on a save file
type Op string

const (
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Event reports a settled change to one save key
type Event struct {
	Key  string
	Path string
	Op   Op
}

// KeyFunc maps a file path in the watched directory to the save key it
// holds. Paths it rejects (temp files, foreign files) are ignored.
type KeyFunc func(path string) (string, bool)

// Watcher watches a save directory and reports per-key changes after a quiet period
type Watcher struct {
	dir        string
	debounce   time.Duration
	keyOf      KeyFunc
	callback   func(Event)
	watcher    *fsnotify.Watcher
	done       chan struct{}
	started    bool
	closed     bool
	mu         sync.Mutex
	pending    map[string]*time.Timer
	debounceMu sync.Mutex
}

// New creates a Watcher for dir
func New(dir string, debounce time.Duration, keyOf KeyFunc, callback func(Event)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch save dir %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		keyOf:    keyOf,
		callback: callback,
		watcher:  watcher,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start starts watching for events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	w.started = true
	go w.watch()
	return nil
}

// Close stops watching and cancels pending notifications
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.started {
		close(w.done)
	}

	w.debounceMu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.debounceMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Watcher] %s: %v", w.dir, err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	var op Op
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		op = OpWrite
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpRemove
	default:
		return
	}

	key, ok := w.keyOf(event.Name)
	if !ok {
		return
	}
	w.debounceEvent(Event{Key: key, Path: event.Name, Op: op})
}

// debounceEvent restarts the quiet period for a key; the last op wins
func (w *Watcher) debounceEvent(e Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.pending[e.Key]; exists {
		timer.Stop()
	}

	w.pending[e.Key] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.pending, e.Key)
		w.debounceMu.Unlock()

		w.callback(e)
	})
}
