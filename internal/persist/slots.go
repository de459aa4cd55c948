// internal/persist/slots.go
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
)

// AutoSlotID identifies the synthesized autosave entry
const AutoSlotID = "auto"

// SaveIndexEntry is the metadata kept for one save. It never holds the blob.
type SaveIndexEntry struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	IsAuto     bool      `json:"isAuto"`
	HeroName   string    `json:"heroName"`
	ClassID    string    `json:"classId"`
	ClassName  string    `json:"className"`
	Level      int       `json:"level"`
	Area       string    `json:"area"`
	Patch      string    `json:"patch"`
	SavedAt    string    `json:"savedAt"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// SaveGameToSlot forces an autosave and copies the result into a manual
// slot. An empty id allocates a new slot.
func (m *Manager) SaveGameToSlot(id, label string) (SaveIndexEntry, error) {
	if !m.autosave.RequestSave(true) {
		if err := m.LastError(); err != nil {
			return SaveIndexEntry{}, fmt.Errorf("save slot: %w", err)
		}
		return SaveIndexEntry{}, errors.New("save slot: autosave did not complete")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	key := m.opts.Keys.Autosave

	text, ok, err := m.kv.Get(m.ctx, key)
	if err != nil {
		serr := &StorageError{Op: "read", Key: key, At: m.opts.Now(), Err: err}
		m.recordLocked(serr)
		return SaveIndexEntry{}, serr
	}
	if !ok {
		return SaveIndexEntry{}, fmt.Errorf("save slot %s: %w", id, ErrNoSave)
	}

	// The text was produced a moment ago, so failing to read it back is a bug
	entry, err := describeSave(text)
	if err != nil {
		cerr := &CorruptionError{Op: "save slot", Key: key, Reason: "fresh autosave unreadable", At: m.opts.Now(), Err: err}
		m.recordLocked(cerr)
		return SaveIndexEntry{}, cerr
	}
	entry.ID = id
	entry.Label = label
	if entry.Label == "" {
		entry.Label = fmt.Sprintf("%s - Lv %d", entry.HeroName, entry.Level)
	}
	entry.LastPlayed = m.opts.Now()

	index, err := m.readIndexLocked()
	if err != nil {
		return SaveIndexEntry{}, err
	}

	// Blob first, so an index entry never points at a missing slot
	slotKey := m.opts.Keys.Slot(id)
	if err := m.kv.Set(m.ctx, slotKey, text); err != nil {
		serr := &StorageError{Op: "write", Key: slotKey, At: m.opts.Now(), Err: err}
		m.recordLocked(serr)
		return SaveIndexEntry{}, serr
	}

	replaced := false
	for i := range index {
		if index[i].ID == id {
			index[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, entry)
	}
	if err := m.writeIndexLocked(index); err != nil {
		return SaveIndexEntry{}, err
	}

	m.log.Printf("[Slots] Saved slot %s (%s)", id, entry.Label)
	m.events.EmitSlotsChanged(eventhub.SlotsChangedEvent{ID: id, Action: "saved"})
	return entry, nil
}

// DeleteSaveSlot removes a slot from the index and then, best effort, its blob
func (m *Manager) DeleteSaveSlot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexLocked()
	if err != nil {
		return err
	}

	kept := index[:0]
	found := false
	for _, entry := range index {
		if entry.ID == id {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return fmt.Errorf("delete slot %s: %w", id, ErrSlotNotFound)
	}
	if err := m.writeIndexLocked(kept); err != nil {
		return err
	}

	slotKey := m.opts.Keys.Slot(id)
	if err := m.kv.Remove(m.ctx, slotKey); err != nil {
		m.log.Printf("[Slots] Left orphaned blob %s: %v", slotKey, err)
	}

	m.log.Printf("[Slots] Deleted slot %s", id)
	m.events.EmitSlotsChanged(eventhub.SlotsChangedEvent{ID: id, Action: "deleted"})
	return nil
}

// LoadGameFromSlot makes a slot's blob the current autosave and loads it
func (m *Manager) LoadGameFromSlot(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	slotKey := m.opts.Keys.Slot(id)
	text, ok, err := m.kv.Get(m.ctx, slotKey)
	if err != nil {
		m.recordLocked(&StorageError{Op: "read", Key: slotKey, At: m.opts.Now(), Err: err})
		return false
	}
	if !ok {
		m.recordLocked(fmt.Errorf("load slot %s: %w", id, ErrSlotNotFound))
		m.events.EmitLoadMissing(slotKey)
		return false
	}

	if err := m.kv.Set(m.ctx, m.opts.Keys.Autosave, text); err != nil {
		m.recordLocked(&StorageError{Op: "write", Key: m.opts.Keys.Autosave, At: m.opts.Now(), Err: err})
		return false
	}
	if !m.loadLocked(false, id) {
		return false
	}

	index, err := m.readIndexLocked()
	if err != nil {
		return true
	}
	for i := range index {
		if index[i].ID == id {
			index[i].LastPlayed = m.opts.Now()
			if err := m.writeIndexLocked(index); err != nil {
				m.log.Printf("[Slots] Could not update lastPlayed for %s: %v", id, err)
			}
			break
		}
	}
	return true
}

// GetAllSavesWithAuto lists the manual slots plus the live autosave, most
// recently played first
func (m *Manager) GetAllSavesWithAuto() []SaveIndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexLocked()
	if err != nil {
		index = nil
	}
	entries := append([]SaveIndexEntry(nil), index...)

	if auto, ok := m.autoEntryLocked(); ok {
		entries = append(entries, auto)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastPlayed.After(entries[j].LastPlayed)
	})
	return entries
}

func (m *Manager) autoEntryLocked() (SaveIndexEntry, bool) {
	text, ok, err := m.kv.Get(m.ctx, m.opts.Keys.Autosave)
	if err != nil || !ok {
		return SaveIndexEntry{}, false
	}
	entry, err := describeSave(text)
	if err != nil {
		m.log.Printf("[Slots] Autosave unreadable, omitted from list: %v", err)
		return SaveIndexEntry{}, false
	}
	entry.ID = AutoSlotID
	entry.Label = "Autosave"
	entry.IsAuto = true
	if at, err := time.Parse(time.RFC3339Nano, entry.SavedAt); err == nil {
		entry.LastPlayed = at
	}
	return entry, true
}

func (m *Manager) readIndexLocked() ([]SaveIndexEntry, error) {
	key := m.opts.Keys.Index
	text, ok, err := m.kv.Get(m.ctx, key)
	if err != nil {
		serr := &StorageError{Op: "read", Key: key, At: m.opts.Now(), Err: err}
		m.recordLocked(serr)
		return nil, serr
	}
	if !ok {
		return []SaveIndexEntry{}, nil
	}
	var index []SaveIndexEntry
	if err := json.Unmarshal([]byte(text), &index); err != nil {
		cerr := &CorruptionError{Op: "read index", Key: key, Reason: "slot index unparseable", At: m.opts.Now(), Err: err}
		m.recordLocked(cerr)
		return nil, cerr
	}
	return index, nil
}

func (m *Manager) writeIndexLocked(index []SaveIndexEntry) error {
	key := m.opts.Keys.Index
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode slot index: %w", err)
	}
	if err := m.kv.Set(m.ctx, key, string(data)); err != nil {
		serr := &StorageError{Op: "write", Key: key, At: m.opts.Now(), Err: err}
		m.recordLocked(serr)
		return serr
	}
	return nil
}

// describeSave extracts hero metadata from save text in either format
func describeSave(text string) (SaveIndexEntry, error) {
	raw, err := DecodeSave(text)
	if err != nil {
		return SaveIndexEntry{}, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return SaveIndexEntry{}, err
	}

	var hero struct {
		Player *struct {
			Name      string `json:"name"`
			ClassID   string `json:"classId"`
			ClassName string `json:"className"`
			Level     int    `json:"level"`
		} `json:"player"`
		Area string `json:"area"`
		Meta struct {
			Patch   string `json:"patch"`
			SavedAt string `json:"savedAt"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &hero); err != nil {
		return SaveIndexEntry{}, err
	}
	if hero.Player == nil {
		return SaveIndexEntry{}, errors.New("save has no player record")
	}

	return SaveIndexEntry{
		HeroName:  hero.Player.Name,
		ClassID:   hero.Player.ClassID,
		ClassName: hero.Player.ClassName,
		Level:     hero.Player.Level,
		Area:      hero.Area,
		Patch:     hero.Meta.Patch,
		SavedAt:   hero.Meta.SavedAt,
	}, nil
}
