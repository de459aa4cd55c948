// internal/persist/helpers_test.go
package persist

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
)

// manualTimers replaces time.AfterFunc so tests decide when windows close
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *manualTimers) after(_ time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.pending = append(c.pending, t)
	return t
}

// fire runs every armed timer that has not been stopped
func (c *manualTimers) fire() {
	c.mu.Lock()
	due := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, t := range due {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
	}
}

// fireStale runs timers even if they were stopped, like a time.AfterFunc
// callback that already started when Stop was called
func (c *manualTimers) fireStale() {
	c.mu.Lock()
	due := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, t := range due {
		t.fired = true
		t.f()
	}
}

type recordedEvent struct {
	name    string
	payload interface{}
}

type testHarness struct {
	m      *Manager
	kv     *storage.MemoryStore
	timers *manualTimers
	hub    *eventhub.EventHub

	mu     sync.Mutex
	events []recordedEvent
}

func (h *testHarness) eventNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.events))
	for _, e := range h.events {
		names = append(names, e.name)
	}
	return names
}

func (h *testHarness) count(name string) int {
	n := 0
	for _, got := range h.eventNames() {
		if got == name {
			n++
		}
	}
	return n
}

func (h *testHarness) last(name string) interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].name == name {
			return h.events[i].payload
		}
	}
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, mutate ...func(*Options)) *testHarness {
	t.Helper()
	return newHarnessWith(t, audit.Default(), mutate...)
}

func newHarnessWith(t *testing.T, auditor Auditor, mutate ...func(*Options)) *testHarness {
	t.Helper()

	h := &testHarness{
		kv:     storage.NewMemoryStore(),
		timers: &manualTimers{},
		hub:    eventhub.New(context.Background()),
	}
	h.hub.Subscribe(func(name string, payload interface{}) {
		h.mu.Lock()
		h.events = append(h.events, recordedEvent{name: name, payload: payload})
		h.mu.Unlock()
	})

	clock := testNow
	opts := DefaultOptions()
	opts.Patch = "1.0.0-test"
	opts.Logger = log.New(io.Discard, "", 0)
	opts.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	opts.after = h.timers.after
	for _, fn := range mutate {
		fn(&opts)
	}

	h.m = NewManager(context.Background(), h.kv, game.NewSystems(), auditor, h.hub, opts)
	t.Cleanup(h.m.Stop)
	return h
}

// heroState fills the live state with a mid-adventure hero
func (h *testHarness) autosaveText(t *testing.T) string {
	t.Helper()
	text, ok, err := h.kv.Get(context.Background(), h.m.opts.Keys.Autosave)
	if err != nil || !ok {
		t.Fatalf("Expected autosave present, got ok=%v err=%v", ok, err)
	}
	return text
}

func heroState(st *game.State) {
	st.Player.Name = "Ari"
	st.Player.ClassID = "mage"
	st.Player.ClassName = "Mage"
	st.Player.Level = 4
	st.Player.XP = 120
	st.Player.HP = 14
	st.Player.MaxHP = 26
	st.Player.Gold = 75
	st.Area = "forest"
	st.Time = &game.TimeState{Day: 9, PartIndex: 1}
	st.Inventory = []game.Item{{ID: "potion", Name: "Potion", Kind: "consumable", Quantity: 2}}
	st.Quests = map[string]game.Quest{"q1": {ID: "q1", Stage: 2, Status: "active"}}
	st.Flags = map[string]bool{"metElder": true}
	st.Companion = &game.Companion{ID: "wolf", Name: "Wolf", HP: 9, BaseMaxHP: 10, BaseAttack: 2}
}
