// internal/persist/loader.go
package persist

import (
	"encoding/json"
	"errors"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
)

// SourceAutosave names the rolling autosave as a load source
const SourceAutosave = "autosave"

// LoadGame rebuilds the live state from the rolling autosave. It returns
// false when there is nothing to load or the save is unusable; the live
// state is only replaced on success.
func (m *Manager) LoadGame(recovery bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(recovery, SourceAutosave)
}

func (m *Manager) loadLocked(recovery bool, source string) bool {
	key := m.opts.Keys.Autosave

	text, ok, err := m.kv.Get(m.ctx, key)
	if err != nil {
		readErr := &StorageError{Op: "read", Key: key, At: m.opts.Now(), Err: err}
		m.recordLocked(readErr)
		// Bytes that fail their digest are damaged data, not a transient fault
		if errors.Is(err, storage.ErrDigestMismatch) {
			m.events.EmitLoadCorrupt(eventhub.LoadCorruptEvent{Key: key, Reason: "digest_mismatch", Recovery: recovery})
		} else {
			m.events.EmitLoadFailed(eventhub.LoadFailedEvent{Key: key, Error: readErr.Error(), Recovery: recovery})
		}
		return false
	}
	if !ok {
		m.log.Printf("[Loader] No save under %s", key)
		m.events.EmitLoadMissing(key)
		return false
	}

	raw, err := DecodeSave(text)
	if err != nil {
		m.corruptLocked(key, err, recovery)
		return false
	}

	blob := m.migrator.Migrate(raw)
	if migrate.IsCorrupt(blob) {
		m.corruptLocked(key, &CorruptionError{Op: "migrate", Reason: migrate.CorruptReason(blob), At: m.opts.Now()}, recovery)
		return false
	}

	st, err := m.rebuild(blob)
	if err != nil {
		m.corruptLocked(key, &CorruptionError{Op: "rebuild", Reason: "blob does not fit live state", At: m.opts.Now(), Err: err}, recovery)
		return false
	}

	report := m.auditor.Run(st, audit.StageLoad)
	m.lastWarnings = report.Issues
	if len(report.Issues) > 0 {
		m.log.Printf("[Loader] Loaded with %d audit issue(s), severity %s", len(report.Issues), report.Severity)
		m.events.EmitLoadWarnings(report.Issues)
	}

	m.state = st
	m.source = source
	m.log.Printf("[Loader] Loaded %s (schema %d, patch %s)", source, st.Meta.Schema, st.Meta.Patch)
	m.events.EmitLoadCompleted(eventhub.LoadCompletedEvent{
		Source:   source,
		Schema:   st.Meta.Schema,
		Patch:    st.Meta.Patch,
		Recovery: recovery,
	})
	return true
}

func (m *Manager) corruptLocked(key string, err error, recovery bool) {
	reason := "corrupt"
	var sumErr *ChecksumError
	var corruptErr *CorruptionError
	switch {
	case errors.As(err, &sumErr):
		sumErr.Key = key
		reason = sumErr.Reason
	case errors.As(err, &corruptErr):
		corruptErr.Key = key
		reason = corruptErr.Reason
	}
	m.recordLocked(err)
	m.events.EmitLoadCorrupt(eventhub.LoadCorruptEvent{Key: key, Reason: reason, Recovery: recovery})
}

// rebuild copies a migrated blob into a fresh state and runs every repair
// helper over it
func (m *Manager) rebuild(blob migrate.Blob) (*game.State, error) {
	data, err := json.Marshal(blob)
	if err != nil {
		return nil, err
	}

	st := m.sys.CreateEmptyState()
	if err := json.Unmarshal(data, st); err != nil {
		// A mistyped field keeps its fresh default; everything else is copied
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, err
		}
		m.log.Printf("[Loader] Skipped mistyped field %q: %v", typeErr.Field, err)
	}
	if st.Player == nil {
		return nil, errors.New("player record is null")
	}

	m.sys.InitTime(st)
	m.sys.InitEconomy(st)
	m.sys.InitGovernment(st)
	m.sys.EnsurePopulation(st)
	m.sys.InitBank(st)
	m.sys.InitMerchant(st)

	m.reconcileCombat(st)

	m.sys.RecalcPlayerStats(st)
	m.sys.RescaleCompanion(st, game.RescaleOptions{Heal: false})
	return st, nil
}

// reconcileCombat leaves st either out of combat with no enemy pointers, or
// in combat targeting a living enemy
func (m *Manager) reconcileCombat(st *game.State) {
	kept := make([]*game.Enemy, 0, len(st.Enemies))
	for _, e := range st.Enemies {
		if e == nil {
			continue
		}
		m.sys.EnsureEnemyRuntime(e)
		kept = append(kept, e)
	}
	st.Enemies = kept
	if st.CurrentEnemy != nil {
		m.sys.EnsureEnemyRuntime(st.CurrentEnemy)
	}

	if st.InCombat {
		if len(st.Enemies) == 0 && st.CurrentEnemy != nil {
			st.Enemies = []*game.Enemy{st.CurrentEnemy}
		}
		idx := st.TargetEnemyIndex
		if idx < 0 || idx >= len(st.Enemies) || !st.Enemies[idx].Alive() {
			idx = -1
			for i, e := range st.Enemies {
				if e.Alive() {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			st.InCombat = false
		} else {
			st.TargetEnemyIndex = idx
		}
	}
	if !st.InCombat {
		st.Enemies = []*game.Enemy{}
	}

	m.sys.EnsureCombatPointers(st)
	m.sys.EnsureCombatTurnState(st)
}
