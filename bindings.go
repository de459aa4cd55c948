// bindings.go
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/checksum"
	"github.com/alsub25/Pocket-RPG-sub006/internal/database"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
	"github.com/alsub25/Pocket-RPG-sub006/internal/persist"
)

var errNotStarted = errors.New("app not started")

func (a *App) manager() (*persist.Manager, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.saveManager == nil {
		return nil, errNotStarted
	}
	return a.saveManager, nil
}

// failure returns the error recorded since prev, or fallback when the
// manager recorded nothing new
func failure(m *persist.Manager, prev error, fallback error) error {
	if err := m.LastError(); err != nil && err != prev {
		return err
	}
	return fallback
}

// ===== Autosave Bindings =====

// SaveGame requests an autosave. Unforced requests inside the debounce
// window are coalesced and report no error.
func (a *App) SaveGame(force bool) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	prev := m.LastError()
	if m.SaveGame(persist.SaveOptions{Force: force}) {
		return nil
	}
	var fallback error
	if force {
		fallback = errors.New("save was not written")
	}
	return failure(m, prev, fallback)
}

// LoadGame replaces the live state with the rolling autosave
func (a *App) LoadGame(recovery bool) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	prev := m.LastError()
	if m.LoadGame(recovery) {
		return nil
	}
	return failure(m, prev, persist.ErrNoSave)
}

// NewGame starts a fresh hero and writes it as the autosave
func (a *App) NewGame(name, classID string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("hero name is required")
	}

	sys := game.NewSystems()
	fresh := sys.CreateEmptyState()
	fresh.Player.Name = name
	fresh.Player.ClassID = classID
	sys.InitTime(fresh)
	sys.InitEconomy(fresh)
	sys.InitGovernment(fresh)
	sys.EnsurePopulation(fresh)
	sys.InitBank(fresh)
	sys.InitMerchant(fresh)
	sys.RecalcPlayerStats(fresh)

	m.Replace(fresh)
	return a.SaveGame(true)
}

// CurrentState returns the blob a save right now would write
func (a *App) CurrentState() (migrate.Blob, error) {
	m, err := a.manager()
	if err != nil {
		return nil, err
	}
	return m.Snapshot()
}

// AuditState runs the integrity audit against the live state
func (a *App) AuditState() (audit.Report, error) {
	m, err := a.manager()
	if err != nil {
		return audit.Report{}, err
	}
	return m.Audit(), nil
}

// LoadInfo reports where the live state came from and what the post-load
// audit found
type LoadInfo struct {
	Source   string        `json:"source"`
	Warnings []audit.Issue `json:"warnings,omitempty"`
}

// LastLoad returns the LoadInfo of the live state
func (a *App) LastLoad() (LoadInfo, error) {
	m, err := a.manager()
	if err != nil {
		return LoadInfo{}, err
	}
	return LoadInfo{Source: m.Source(), Warnings: m.LastWarnings()}, nil
}

// LastSaveError returns the most recent persistence failure as text
func (a *App) LastSaveError() string {
	m, err := a.manager()
	if err != nil {
		return err.Error()
	}
	if err := m.LastError(); err != nil {
		return err.Error()
	}
	return ""
}

// ===== Slot Bindings =====

// SaveGameToSlot copies a fresh autosave into a manual slot
func (a *App) SaveGameToSlot(id, label string) (persist.SaveIndexEntry, error) {
	m, err := a.manager()
	if err != nil {
		return persist.SaveIndexEntry{}, err
	}
	return m.SaveGameToSlot(id, label)
}

// DeleteSaveSlot removes a manual slot
func (a *App) DeleteSaveSlot(id string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	return m.DeleteSaveSlot(id)
}

// LoadGameFromSlot loads a manual slot and makes it the autosave
func (a *App) LoadGameFromSlot(id string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	prev := m.LastError()
	if m.LoadGameFromSlot(id) {
		return nil
	}
	return failure(m, prev, fmt.Errorf("load slot %s: %w", id, persist.ErrSlotNotFound))
}

// GetAllSavesWithAuto lists manual slots plus the autosave
func (a *App) GetAllSavesWithAuto() ([]persist.SaveIndexEntry, error) {
	m, err := a.manager()
	if err != nil {
		return nil, err
	}
	return m.GetAllSavesWithAuto(), nil
}

// ===== Save Data Bindings =====

// SaveReport describes a save text checked without loading it
type SaveReport struct {
	Format   string          `json:"format"`
	Checksum checksum.Result `json:"checksum"`
	Schema   int             `json:"schema,omitempty"`
	Patch    string          `json:"patch,omitempty"`
	Corrupt  string          `json:"corrupt,omitempty"`
}

// MigrateSaveData decodes save text in either format and upgrades it to the
// current schema
func MigrateSaveData(text, patch string) (migrate.Blob, error) {
	raw, err := persist.DecodeSave(text)
	if err != nil {
		return nil, err
	}
	blob := migrate.New(patch).Migrate(raw)
	if migrate.IsCorrupt(blob) {
		return nil, &persist.CorruptionError{Op: "migrate", Reason: migrate.CorruptReason(blob), At: time.Now()}
	}
	return blob, nil
}

// VerifySave checks the envelope checksum, if any, and whether the save
// would migrate cleanly
func VerifySave(text, patch string) (SaveReport, error) {
	v, err := checksum.Decode(text)
	if err != nil {
		return SaveReport{}, fmt.Errorf("parse save: %w", err)
	}

	report := SaveReport{Format: "legacy", Checksum: checksum.Result{OK: true}}
	if checksum.IsEnvelope(v) {
		report.Format = "envelope"
		report.Checksum = checksum.Validate(v)
		if !report.Checksum.OK {
			return report, nil
		}
	}

	raw, err := persist.DecodeSave(text)
	if err != nil {
		return report, err
	}
	blob := migrate.New(patch).Migrate(raw)
	if migrate.IsCorrupt(blob) {
		report.Corrupt = migrate.CorruptReason(blob)
		return report, nil
	}
	if meta, ok := blob["meta"].(map[string]any); ok {
		report.Schema, _ = meta["schema"].(int)
		report.Patch, _ = meta["patch"].(string)
	}
	return report, nil
}

// ResetStore drops every stored key, saves and slots alike
func (a *App) ResetStore() error {
	a.mu.RLock()
	ctx, db := a.ctx, a.dbManager
	a.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("store reset needs the sqlite backend")
	}
	return db.Reset(ctx)
}

// ListStoredKeys describes every stored value under the configured prefix
func (a *App) ListStoredKeys() ([]*database.SaveKey, error) {
	a.mu.RLock()
	ctx, db, cfg := a.ctx, a.dbManager, a.config
	a.mu.RUnlock()

	if db == nil || cfg == nil {
		return nil, fmt.Errorf("key listing needs the sqlite backend")
	}
	return db.Keys(ctx, cfg.Persistence.KeyPrefix+":")
}
