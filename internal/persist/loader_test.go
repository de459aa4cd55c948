// internal/persist/loader_test.go
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/checksum"
	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
)

func putAutosave(t *testing.T, h *testHarness, v any) {
	t.Helper()
	var text string
	switch s := v.(type) {
	case string:
		text = s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		text = string(data)
	}
	if err := h.kv.Set(context.Background(), h.m.opts.Keys.Autosave, text); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
}

func TestLoader_Missing(t *testing.T) {
	h := newHarness(t)
	before := h.m.State()

	if h.m.LoadGame(false) {
		t.Fatal("Expected false with no save")
	}
	if h.m.LastError() != nil {
		t.Errorf("A missing save is not an error, got %v", h.m.LastError())
	}
	if h.count(eventhub.LoadMissing) != 1 || h.count(eventhub.LoadCorrupt) != 0 {
		t.Errorf("Expected plain load:missing notice, got %v", h.eventNames())
	}
	if h.m.State() != before {
		t.Error("Live state replaced on missing save")
	}
}

func TestLoader_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.m.Update(heroState)
	h.m.SaveGame(SaveOptions{Force: true})

	h.m.Update(func(st *game.State) {
		st.Player.Gold = 1
		st.Area = "cave"
	})

	if !h.m.LoadGame(false) {
		t.Fatalf("LoadGame failed: %v", h.m.LastError())
	}
	st := h.m.State()
	if st.Player.Name != "Ari" || st.Player.Gold != 75 || st.Area != "forest" {
		t.Errorf("Expected saved hero restored, got %+v area=%s", st.Player, st.Area)
	}
	if st.Quests["q1"].Stage != 2 || !st.Flags["metElder"] {
		t.Errorf("Expected quests and flags restored, got %+v %+v", st.Quests, st.Flags)
	}
	if st.Time.Day != 9 {
		t.Errorf("Expected day 9, got %d", st.Time.Day)
	}
	if st.Economy == nil || st.Government == nil || st.Population == nil || st.Bank == nil || st.Merchant == nil {
		t.Error("Expected every world record initialized")
	}
	if st.Meta.Schema != migrate.CurrentSchema {
		t.Errorf("Expected schema %d, got %d", migrate.CurrentSchema, st.Meta.Schema)
	}
	if h.m.Source() != SourceAutosave {
		t.Errorf("Expected source autosave, got %q", h.m.Source())
	}

	ev, ok := h.last(eventhub.LoadCompleted).(eventhub.LoadCompletedEvent)
	if !ok || ev.Patch != "1.0.0-test" {
		t.Errorf("Expected load:completed with patch, got %+v", h.last(eventhub.LoadCompleted))
	}
}

func TestLoader_NoHealingOnResync(t *testing.T) {
	h := newHarness(t)
	h.m.Update(heroState)
	h.m.SaveGame(SaveOptions{Force: true})

	if !h.m.LoadGame(false) {
		t.Fatalf("LoadGame failed: %v", h.m.LastError())
	}
	st := h.m.State()
	if st.Player.HP != 14 {
		t.Errorf("Expected player hp kept at 14, got %d", st.Player.HP)
	}
	c := st.Companion
	if c.MaxHP != 22 {
		t.Errorf("Expected companion rescaled to level 4 (maxHp 22), got %d", c.MaxHP)
	}
	if c.HP != 9 {
		t.Errorf("Expected companion hp kept at 9, got %d", c.HP)
	}
}

func TestLoader_ChecksumMismatchIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.m.Update(heroState)
	h.m.SaveGame(SaveOptions{Force: true})

	tampered := strings.Replace(h.autosaveText(t), `"Ari"`, `"Bob"`, 1)
	putAutosave(t, h, tampered)

	live := h.m.State()
	if h.m.LoadGame(false) {
		t.Fatal("Expected tampered save to be rejected")
	}
	if h.m.State() != live {
		t.Error("Live state mutated by a failed load")
	}

	err := h.m.LastError()
	if !errors.Is(err, ErrChecksum) || !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected checksum corruption, got %v", err)
	}
	ev, ok := h.last(eventhub.LoadCorrupt).(eventhub.LoadCorruptEvent)
	if !ok || ev.Reason != checksum.ReasonChecksumMismatch {
		t.Errorf("Expected load:corrupt checksum_mismatch, got %+v", h.last(eventhub.LoadCorrupt))
	}
}

func TestLoader_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"unparseable", `{"player":`},
		{"not an object", `[1,2,3]`},
		{"no player", map[string]any{"meta": map[string]any{"schema": 3}}},
		{"future schema", map[string]any{"player": map[string]any{}, "meta": map[string]any{"schema": migrate.CurrentSchema + 4}}},
		{"envelope without checksum", map[string]any{"state": map[string]any{"player": map[string]any{}}, "checksumAlg": "fnv1a32"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			putAutosave(t, h, tt.value)

			if h.m.LoadGame(true) {
				t.Fatal("Expected load to fail")
			}
			if !errors.Is(h.m.LastError(), ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", h.m.LastError())
			}
			ev, ok := h.last(eventhub.LoadCorrupt).(eventhub.LoadCorruptEvent)
			if !ok {
				t.Fatalf("Expected load:corrupt, got %v", h.eventNames())
			}
			if !ev.Recovery {
				t.Error("Expected recovery flag carried on the event")
			}
		})
	}
}

func TestLoader_StorageReadFailure(t *testing.T) {
	h := newHarness(t)
	h.kv.FailReads(errors.New("disk gone"))

	if h.m.LoadGame(false) {
		t.Fatal("Expected load to fail")
	}
	var storageErr *StorageError
	if !errors.As(h.m.LastError(), &storageErr) {
		t.Errorf("Expected StorageError, got %v", h.m.LastError())
	}
	if h.count(eventhub.LoadFailed) != 1 || h.count(eventhub.LoadCorrupt) != 0 {
		t.Errorf("Expected load:failed without a recovery prompt, got %v", h.eventNames())
	}
}

func TestLoader_DigestMismatchIsCorrupt(t *testing.T) {
	h := newHarness(t)
	h.kv.FailReads(fmt.Errorf("read autosave: %w", storage.ErrDigestMismatch))

	if h.m.LoadGame(true) {
		t.Fatal("Expected load to fail")
	}
	if h.count(eventhub.LoadFailed) != 0 {
		t.Errorf("Damaged bytes should not be reported as load:failed, got %v", h.eventNames())
	}
	ev, ok := h.last(eventhub.LoadCorrupt).(eventhub.LoadCorruptEvent)
	if !ok || ev.Reason != "digest_mismatch" || !ev.Recovery {
		t.Errorf("Expected load:corrupt digest_mismatch with recovery flag, got %+v", h.last(eventhub.LoadCorrupt))
	}
}

func TestLoader_SingleEnemyFightSurvives(t *testing.T) {
	for _, enemies := range []any{"absent", nil, []any{}} {
		blob := map[string]any{
			"player":       map[string]any{"hp": 10, "maxHp": 10},
			"inCombat":     true,
			"currentEnemy": map[string]any{"id": "wolf", "hp": 7, "maxHp": 9},
			"meta":         map[string]any{"schema": migrate.CurrentSchema},
		}
		if enemies != "absent" {
			blob["enemies"] = enemies
		}

		h := newHarness(t)
		putAutosave(t, h, blob)
		if !h.m.LoadGame(false) {
			t.Fatalf("enemies=%v: LoadGame failed: %v", enemies, h.m.LastError())
		}

		st := h.m.State()
		if !st.InCombat || len(st.Enemies) != 1 {
			t.Fatalf("enemies=%v: expected fight kept with 1 enemy, got inCombat=%v enemies=%d", enemies, st.InCombat, len(st.Enemies))
		}
		if st.CurrentEnemy == nil || st.CurrentEnemy.ID != "wolf" || st.CurrentEnemy.HP != 7 {
			t.Errorf("enemies=%v: expected wolf at 7 hp targeted, got %+v", enemies, st.CurrentEnemy)
		}
		if st.CurrentEnemy != st.Enemies[0] {
			t.Errorf("enemies=%v: currentEnemy must be the list entry", enemies)
		}
	}
}

func TestLoader_SchemaOneScenario(t *testing.T) {
	h := newHarness(t)
	putAutosave(t, h, map[string]any{
		"player":       map[string]any{"hp": -5, "maxHp": 0},
		"inCombat":     true,
		"currentEnemy": nil,
		"enemies":      nil,
		"meta":         map[string]any{"schema": 1},
	})

	if !h.m.LoadGame(false) {
		t.Fatalf("LoadGame failed: %v", h.m.LastError())
	}
	st := h.m.State()
	if st.Player.MaxHP < 1 || st.Player.HP < 0 || st.Player.HP > st.Player.MaxHP {
		t.Errorf("Expected 0 <= hp <= maxHp and maxHp >= 1, got hp=%d maxHp=%d", st.Player.HP, st.Player.MaxHP)
	}
	if st.InCombat || st.CurrentEnemy != nil || st.Turn != nil {
		t.Errorf("Expected combat cleared, got inCombat=%v current=%v turn=%v", st.InCombat, st.CurrentEnemy, st.Turn)
	}
}

func TestLoader_EnvelopeStateIsMigrated(t *testing.T) {
	h := newHarness(t)
	state := map[string]any{
		"player": map[string]any{"heroName": "Old", "health": 7, "maxHealth": 10},
		"gold":   30,
	}
	env, err := checksum.Seal(3, state, map[string]any{"schema": 2, "patch": "0.9.1"}, "2024-01-01T00:00:00Z", "")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	putAutosave(t, h, env)

	if !h.m.LoadGame(false) {
		t.Fatalf("LoadGame failed: %v", h.m.LastError())
	}
	st := h.m.State()
	if st.Player.Name != "Old" || st.Player.HP != 7 || st.Player.MaxHP != 10 || st.Player.Gold != 30 {
		t.Errorf("Expected aliases migrated from envelope state, got %+v", st.Player)
	}
	if st.Meta.Patch != "0.9.1" {
		t.Errorf("Expected patch defaulted from envelope meta, got %q", st.Meta.Patch)
	}
}

func TestLoader_CombatReconciliation(t *testing.T) {
	enemy := func(id string, hp int) map[string]any {
		return map[string]any{"id": id, "hp": hp, "maxHp": 10}
	}

	tests := []struct {
		name       string
		enemies    []any
		target     int
		wantCombat bool
		wantTarget string
	}{
		{"dead target falls back to first living", []any{enemy("rat", 0), enemy("bat", 5)}, 0, true, "bat"},
		{"index out of range", []any{enemy("rat", 4), enemy("bat", 5)}, 7, true, "rat"},
		{"valid target kept", []any{enemy("rat", 4), enemy("bat", 5)}, 1, true, "bat"},
		{"all dead ends combat", []any{enemy("rat", 0), enemy("bat", 0)}, 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			putAutosave(t, h, map[string]any{
				"player":           map[string]any{"hp": 10, "maxHp": 10},
				"inCombat":         true,
				"enemies":          tt.enemies,
				"targetEnemyIndex": tt.target,
				"meta":             map[string]any{"schema": migrate.CurrentSchema},
			})

			if !h.m.LoadGame(false) {
				t.Fatalf("LoadGame failed: %v", h.m.LastError())
			}
			st := h.m.State()
			if st.InCombat != tt.wantCombat {
				t.Fatalf("Expected inCombat=%v, got %v", tt.wantCombat, st.InCombat)
			}
			if !tt.wantCombat {
				if st.CurrentEnemy != nil || len(st.Enemies) != 0 || st.Turn != nil {
					t.Errorf("Expected pointers cleared, got current=%v enemies=%d", st.CurrentEnemy, len(st.Enemies))
				}
				return
			}
			if st.CurrentEnemy == nil || st.CurrentEnemy.ID != tt.wantTarget {
				t.Fatalf("Expected target %s, got %+v", tt.wantTarget, st.CurrentEnemy)
			}
			if st.CurrentEnemy != st.Enemies[st.TargetEnemyIndex] {
				t.Error("currentEnemy must be the targeted list entry")
			}
			for _, e := range st.Enemies {
				if e.Runtime == nil {
					t.Errorf("Expected runtime rebuilt for %s", e.ID)
				}
			}
			if st.Turn == nil {
				t.Error("Expected turn state for an active fight")
			}
		})
	}
}

func TestLoader_WarningsDoNotBlock(t *testing.T) {
	rich, err := audit.New(audit.Rule{Name: "rich", Expr: `gold > 50`, Message: "suspiciously rich", Severity: audit.SeverityWarning})
	if err != nil {
		t.Fatalf("audit.New failed: %v", err)
	}
	h := newHarnessWith(t, rich)
	h.m.Update(heroState)
	h.m.SaveGame(SaveOptions{Force: true})

	if !h.m.LoadGame(false) {
		t.Fatalf("Expected load to succeed despite warnings: %v", h.m.LastError())
	}
	warnings := h.m.LastWarnings()
	if len(warnings) != 1 || warnings[0].Rule != "rich" {
		t.Errorf("Expected rich warning recorded, got %+v", warnings)
	}
	if h.count(eventhub.LoadWarnings) != 1 {
		t.Errorf("Expected load:warnings, got %v", h.eventNames())
	}
}

func TestLoader_MistypedFieldKeepsDefault(t *testing.T) {
	h := newHarness(t)
	putAutosave(t, h, map[string]any{
		"player": map[string]any{"name": "Ari", "hp": 5, "maxHp": 8},
		"area":   42,
		"meta":   map[string]any{"schema": migrate.CurrentSchema},
	})

	if !h.m.LoadGame(false) {
		t.Fatalf("LoadGame failed: %v", h.m.LastError())
	}
	st := h.m.State()
	if st.Player.Name != "Ari" {
		t.Errorf("Expected other fields copied, got %+v", st.Player)
	}
}
