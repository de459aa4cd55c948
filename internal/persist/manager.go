// internal/persist/manager.go
package persist

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
)

// Systems is the state factory plus the idempotent repair helpers the
// loader and autosave rely on
type Systems interface {
	CreateEmptyState() *game.State
	InitTime(st *game.State)
	InitEconomy(st *game.State)
	InitGovernment(st *game.State)
	EnsurePopulation(st *game.State)
	InitBank(st *game.State)
	InitMerchant(st *game.State)
	EnsureEnemyRuntime(e *game.Enemy)
	EnsureCombatPointers(st *game.State)
	EnsureCombatTurnState(st *game.State)
	RecalcPlayerStats(st *game.State)
	RescaleCompanion(st *game.State, opts game.RescaleOptions)
}

// Auditor checks live state consistency
type Auditor interface {
	Run(st *game.State, stage audit.Stage) audit.Report
}

// EventEmitter receives persistence notifications
type EventEmitter interface {
	EmitSaveCompleted(event eventhub.SaveCompletedEvent)
	EmitSaveRefused(event eventhub.SaveRefusedEvent)
	EmitSaveFailed(event eventhub.SaveFailedEvent)
	EmitLoadCompleted(event eventhub.LoadCompletedEvent)
	EmitLoadMissing(key string)
	EmitLoadCorrupt(event eventhub.LoadCorruptEvent)
	EmitLoadFailed(event eventhub.LoadFailedEvent)
	EmitLoadWarnings(issues []audit.Issue)
	EmitSlotsChanged(event eventhub.SlotsChangedEvent)
}

// Keys names the three kinds of stored values
type Keys struct {
	Autosave   string
	Index      string
	SlotPrefix string
}

// KeysFor derives the store keys from a prefix
func KeysFor(prefix string) Keys {
	return Keys{
		Autosave:   prefix + ":autosave",
		Index:      prefix + ":slots",
		SlotPrefix: prefix + ":slot:",
	}
}

// Slot returns the key holding one manual slot's blob
func (k Keys) Slot(id string) string {
	return k.SlotPrefix + id
}

// Options configures a Manager
type Options struct {
	Keys             Keys
	Debounce         time.Duration
	RefuseOnCritical bool
	Envelope         bool
	ChecksumAlg      string
	Patch            string
	Logger           *log.Logger
	Now              func() time.Time

	after afterFunc
}

// DefaultOptions mirrors the built-in persistence settings
func DefaultOptions() Options {
	return Options{
		Keys:             KeysFor("pocketrpg"),
		Debounce:         350 * time.Millisecond,
		RefuseOnCritical: true,
		Envelope:         true,
		Patch:            "dev",
	}
}

// SaveOptions tunes one SaveGame call
type SaveOptions struct {
	Force bool
}

// Manager owns the live state handle and serializes every read and write
// of it, and of the store, behind one mutex
type Manager struct {
	ctx     context.Context
	mu      sync.Mutex
	kv      storage.KV
	sys     Systems
	auditor Auditor
	events  EventEmitter
	log     *log.Logger
	opts    Options

	migrator *migrate.Migrator
	builder  *Builder
	autosave *Autosave

	state          *game.State
	source         string
	lastErr        error
	lastWarnings   []audit.Issue
	warnedRefusals bool
}

// NewManager creates a Manager holding a fresh empty state. events may be nil.
func NewManager(ctx context.Context, kv storage.KV, sys Systems, auditor Auditor, events EventEmitter, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Keys == (Keys{}) {
		opts.Keys = KeysFor("pocketrpg")
	}
	if events == nil {
		events = nopEmitter{}
	}

	m := &Manager{
		ctx:      ctx,
		kv:       kv,
		sys:      sys,
		auditor:  auditor,
		events:   events,
		log:      opts.Logger,
		opts:     opts,
		migrator: &migrate.Migrator{Patch: opts.Patch, Now: opts.Now},
		builder: &Builder{
			Envelope:    opts.Envelope,
			ChecksumAlg: opts.ChecksumAlg,
			Patch:       opts.Patch,
			Now:         opts.Now,
		},
		state: sys.CreateEmptyState(),
	}
	m.autosave = newAutosave(opts.Debounce, opts.after, m.writeAutosave)
	return m
}

// SaveGame requests an autosave of the live state
func (m *Manager) SaveGame(opts SaveOptions) bool {
	return m.autosave.RequestSave(opts.Force)
}

// State returns the live state handle. Mutate it through Update.
func (m *Manager) State() *game.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Update runs fn against the live state while holding the persistence lock
func (m *Manager) Update(fn func(st *game.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// Snapshot returns the blob that a save right now would write
func (m *Manager) Snapshot() (migrate.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builder.Build(m.state)
}

// MigrateSaveData upgrades a raw blob to the current schema
func (m *Manager) MigrateSaveData(raw any) migrate.Blob {
	return m.migrator.Migrate(raw)
}

// Audit runs the integrity audit on demand
func (m *Manager) Audit() audit.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auditor.Run(m.state, audit.StageManual)
}

// LastError returns the most recent persistence failure, or nil
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// LastWarnings returns the issues found by the most recent post-load audit
func (m *Manager) LastWarnings() []audit.Issue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Issue(nil), m.lastWarnings...)
}

// Source reports where the live state was last loaded from ("" for a fresh game)
func (m *Manager) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// Replace installs a freshly built state, such as a new game, as the live
// state. It and the loader are the only paths that swap the state handle.
func (m *Manager) Replace(st *game.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	m.source = ""
	m.lastWarnings = nil
}

// Stop cancels any pending trailing autosave
func (m *Manager) Stop() {
	if m.autosave.Pending() {
		m.log.Printf("[Autosave] Dropping queued save on shutdown")
	}
	m.autosave.Stop()
}

func (m *Manager) writeAutosave(forced bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(forced)
}

// writeLocked performs one physical autosave write
func (m *Manager) writeLocked(forced bool) bool {
	st := m.state
	if st != nil {
		m.sys.EnsureCombatPointers(st)
	}

	report := m.auditor.Run(st, audit.StageSave)
	if report.Critical() {
		if m.opts.RefuseOnCritical {
			err := &IntegrityError{Op: "autosave", Report: report, At: m.opts.Now()}
			m.lastErr = err
			if !m.warnedRefusals {
				m.warnedRefusals = true
				m.log.Printf("[Autosave] Refusing to overwrite save: %v", err)
			}
			m.events.EmitSaveRefused(eventhub.SaveRefusedEvent{Stage: report.Stage, Issues: report.Issues})
			return false
		}
		m.log.Printf("[Autosave] Saving despite critical audit result (%d issues)", len(report.Issues))
	}

	key := m.opts.Keys.Autosave
	text, err := m.builder.Text(st)
	if err != nil {
		m.failLocked(&StorageError{Op: "encode", Key: key, At: m.opts.Now(), Err: err})
		return false
	}
	if err := m.kv.Set(m.ctx, key, text); err != nil {
		m.failLocked(&StorageError{Op: "write", Key: key, At: m.opts.Now(), Err: err})
		return false
	}

	m.events.EmitSaveCompleted(eventhub.SaveCompletedEvent{Key: key, Bytes: len(text), Forced: forced, At: m.opts.Now()})
	return true
}

func (m *Manager) failLocked(err *StorageError) {
	m.recordLocked(err)
	m.events.EmitSaveFailed(eventhub.SaveFailedEvent{Key: err.Key, Error: err.Error()})
}

func (m *Manager) recordLocked(err error) {
	m.lastErr = err
	m.log.Printf("[Persist] %v", err)
}

type nopEmitter struct{}

func (nopEmitter) EmitSaveCompleted(eventhub.SaveCompletedEvent) {}
func (nopEmitter) EmitSaveRefused(eventhub.SaveRefusedEvent)     {}
func (nopEmitter) EmitSaveFailed(eventhub.SaveFailedEvent)       {}
func (nopEmitter) EmitLoadCompleted(eventhub.LoadCompletedEvent) {}
func (nopEmitter) EmitLoadMissing(string)                        {}
func (nopEmitter) EmitLoadCorrupt(eventhub.LoadCorruptEvent)     {}
func (nopEmitter) EmitLoadFailed(eventhub.LoadFailedEvent)       {}
func (nopEmitter) EmitLoadWarnings([]audit.Issue)                {}
func (nopEmitter) EmitSlotsChanged(eventhub.SlotsChangedEvent)   {}
