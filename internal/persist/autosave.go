// internal/persist/autosave.go
package persist

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

// afterFunc schedules f after d; tests swap in a manual clock
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Autosave coalesces save requests. The first request in a quiet period
// writes at once and opens a window; requests inside the window only mark
// the state dirty, and the window closes with at most one trailing write.
type Autosave struct {
	mu     sync.Mutex
	window time.Duration
	after  afterFunc
	write  func(forced bool) bool

	timer   stopper
	gen     uint64
	queued  bool
	stopped bool
}

func newAutosave(window time.Duration, after afterFunc, write func(forced bool) bool) *Autosave {
	if after == nil {
		after = realAfterFunc
	}
	return &Autosave{window: window, after: after, write: write}
}

// RequestSave asks for a save. It reports whether a physical write happened
// and succeeded during this call. Forced requests cancel the window and
// write synchronously.
func (a *Autosave) RequestSave(force bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if force {
		a.cancelLocked()
		return a.write(true)
	}
	if a.stopped {
		return false
	}
	if a.timer != nil {
		a.queued = true
		return false
	}

	ok := a.write(false)
	a.gen++
	gen := a.gen
	a.timer = a.after(a.window, func() { a.fire(gen) })
	return ok
}

func (a *Autosave) fire(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A forced save or Stop already closed this window
	if gen != a.gen || a.timer == nil {
		return
	}
	a.timer = nil
	if a.queued {
		a.queued = false
		a.write(false)
	}
}

func (a *Autosave) cancelLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.queued = false
}

// Pending reports whether a trailing write is queued
func (a *Autosave) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queued
}

// Stop cancels the pending window. Later unforced requests are ignored.
func (a *Autosave) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	a.stopped = true
}
