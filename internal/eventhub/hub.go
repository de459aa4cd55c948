// internal/eventhub/hub.go
package eventhub

import (
	"context"
	"sync"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
)

// Event names
const (
	SaveCompleted = "save:completed"
	SaveRefused   = "save:refused"
	SaveFailed    = "save:failed"
	LoadCompleted = "load:completed"
	LoadMissing   = "load:missing"
	LoadCorrupt   = "load:corrupt"
	LoadFailed    = "load:failed"
	LoadWarnings  = "load:warnings"
	SlotsChanged  = "slots:changed"
	SavesChanged  = "saves:changed"
)

// Broadcaster forwards events to an outer surface (UI bridge, log, socket)
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// Handler receives every event emitted on the hub
type Handler func(eventName string, payload interface{})

// EventHub fans persistence notifications out to subscribers
type EventHub struct {
	ctx         context.Context
	mu          sync.RWMutex
	broadcaster Broadcaster
	handlers    map[int]Handler
	nextID      int
}

// New creates a new EventHub
func New(ctx context.Context) *EventHub {
	return &EventHub{ctx: ctx, handlers: make(map[int]Handler)}
}

// SetBroadcaster sets the outer broadcaster
func (h *EventHub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	h.broadcaster = b
	h.mu.Unlock()
}

// Subscribe registers fn for every event and returns a function that removes it
func (h *EventHub) Subscribe(fn Handler) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}
}

func (h *EventHub) emit(eventName string, payload interface{}) {
	if h.ctx != nil && h.ctx.Err() != nil {
		return
	}

	h.mu.RLock()
	b := h.broadcaster
	handlers := make([]Handler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	if b != nil {
		b.BroadcastEvent(eventName, payload)
	}
	for _, fn := range handlers {
		fn(eventName, payload)
	}
}

// Save events
type SaveCompletedEvent struct {
	Key    string    `json:"key"`
	Bytes  int       `json:"bytes"`
	Forced bool      `json:"forced"`
	At     time.Time `json:"at"`
}

func (h *EventHub) EmitSaveCompleted(event SaveCompletedEvent) {
	h.emit(SaveCompleted, event)
}

type SaveRefusedEvent struct {
	Stage  audit.Stage   `json:"stage"`
	Issues []audit.Issue `json:"issues"`
}

func (h *EventHub) EmitSaveRefused(event SaveRefusedEvent) {
	h.emit(SaveRefused, event)
}

type SaveFailedEvent struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

func (h *EventHub) EmitSaveFailed(event SaveFailedEvent) {
	h.emit(SaveFailed, event)
}

// Load events
type LoadCompletedEvent struct {
	Source   string `json:"source"` // "autosave" or a slot id
	Schema   int    `json:"schema"`
	Patch    string `json:"patch"`
	Recovery bool   `json:"recovery"`
}

func (h *EventHub) EmitLoadCompleted(event LoadCompletedEvent) {
	h.emit(LoadCompleted, event)
}

func (h *EventHub) EmitLoadMissing(key string) {
	h.emit(LoadMissing, map[string]interface{}{"key": key})
}

type LoadCorruptEvent struct {
	Key      string `json:"key"`
	Reason   string `json:"reason"`
	Recovery bool   `json:"recovery"`
}

func (h *EventHub) EmitLoadCorrupt(event LoadCorruptEvent) {
	h.emit(LoadCorrupt, event)
}

// LoadFailedEvent reports a store that could not be read. The save itself
// may be fine, so no recovery prompt is implied.
type LoadFailedEvent struct {
	Key      string `json:"key"`
	Error    string `json:"error"`
	Recovery bool   `json:"recovery"`
}

func (h *EventHub) EmitLoadFailed(event LoadFailedEvent) {
	h.emit(LoadFailed, event)
}

func (h *EventHub) EmitLoadWarnings(issues []audit.Issue) {
	h.emit(LoadWarnings, issues)
}

// Slot events
type SlotsChangedEvent struct {
	ID     string `json:"id"`
	Action string `json:"action"` // "saved", "deleted"
}

func (h *EventHub) EmitSlotsChanged(event SlotsChangedEvent) {
	h.emit(SlotsChanged, event)
}

// External change to the backing store
type SavesChangedEvent struct {
	Key string `json:"key"`
	Op  string `json:"op"`
}

func (h *EventHub) EmitSavesChanged(event SavesChangedEvent) {
	h.emit(SavesChanged, event)
}
