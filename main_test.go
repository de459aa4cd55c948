// main_test.go
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alsub25/Pocket-RPG-sub006/internal/checksum"
	"github.com/alsub25/Pocket-RPG-sub006/internal/migrate"
	"github.com/alsub25/Pocket-RPG-sub006/internal/persist"
)

func runCLI(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--home", home, "-q"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestCLI_LoadWithoutSave(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "load")
	if !errors.Is(err, persist.ErrNoSave) {
		t.Errorf("Expected ErrNoSave, got %v", err)
	}
}

func TestCLI_NewSlotsAndLoad(t *testing.T) {
	home := t.TempDir()

	if _, err := runCLI(t, home, "new", "Ari", "--class", "mage"); err != nil {
		t.Fatalf("new failed: %v", err)
	}

	out, err := runCLI(t, home, "slots", "save", "first", "--label", "Before the cave")
	if err != nil {
		t.Fatalf("slots save failed: %v", err)
	}
	var entry persist.SaveIndexEntry
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("Failed to parse slot entry: %v\n%s", err, out)
	}
	if entry.ID != "first" || entry.HeroName != "Ari" || entry.Label != "Before the cave" {
		t.Errorf("Unexpected entry: %+v", entry)
	}

	out, err = runCLI(t, home, "slots", "list")
	if err != nil {
		t.Fatalf("slots list failed: %v", err)
	}
	var entries []persist.SaveIndexEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("Failed to parse list: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected slot plus autosave, got %d entries", len(entries))
	}
	autos := 0
	for _, e := range entries {
		if e.IsAuto {
			autos++
		}
	}
	if autos != 1 {
		t.Errorf("Expected exactly one auto entry, got %d", autos)
	}

	out, err = runCLI(t, home, "load", "--slot", "first")
	if err != nil {
		t.Fatalf("load --slot failed: %v", err)
	}
	var hero struct {
		Source string         `json:"source"`
		Player map[string]any `json:"player"`
	}
	if err := json.Unmarshal([]byte(out), &hero); err != nil {
		t.Fatalf("Failed to parse hero: %v\n%s", err, out)
	}
	if hero.Source != "first" {
		t.Errorf("Expected source first, got %q", hero.Source)
	}
	if hero.Player["name"] != "Ari" || hero.Player["classId"] != "mage" {
		t.Errorf("Unexpected player: %v", hero.Player)
	}

	out, err = runCLI(t, home, "keys")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	for _, key := range []string{"pocketrpg:autosave", "pocketrpg:slots", "pocketrpg:slot:first"} {
		if !strings.Contains(out, key) {
			t.Errorf("Expected key %s in listing:\n%s", key, out)
		}
	}

	if _, err := runCLI(t, home, "slots", "delete", "first"); err != nil {
		t.Fatalf("slots delete failed: %v", err)
	}
	if _, err := runCLI(t, home, "slots", "delete", "first"); !errors.Is(err, persist.ErrSlotNotFound) {
		t.Errorf("Expected ErrSlotNotFound on second delete, got %v", err)
	}
}

func TestCLI_FileBackend(t *testing.T) {
	t.Setenv("POCKETRPG_BACKEND", "file")
	home := t.TempDir()

	if _, err := runCLI(t, home, "new", "Bo"); err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if _, err := runCLI(t, home, "load"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(home, "saves"))
	if err != nil {
		t.Fatalf("Failed to read saves dir: %v", err)
	}
	if len(files) == 0 {
		t.Error("Expected the autosave file in the saves dir")
	}

	if _, err := runCLI(t, home, "keys"); err == nil {
		t.Error("Expected keys to require the sqlite backend")
	}
}

func TestCLI_Migrate(t *testing.T) {
	path := writeFile(t, "old.json", `{"player":{"heroName":"Ari","health":12,"maxHealth":20},"gold":15,"meta":{"schema":1}}`)

	out, err := runCLI(t, t.TempDir(), "migrate", path, "--patch", "9.9.9")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(out), &blob); err != nil {
		t.Fatalf("Failed to parse output: %v\n%s", err, out)
	}
	meta := blob["meta"].(map[string]any)
	if meta["schema"] != float64(migrate.CurrentSchema) {
		t.Errorf("Expected schema %d, got %v", migrate.CurrentSchema, meta["schema"])
	}
	player := blob["player"].(map[string]any)
	if player["name"] != "Ari" || player["gold"] != float64(15) {
		t.Errorf("Expected aliases resolved, got %v", player)
	}
}

func TestCLI_MigrateCorrupt(t *testing.T) {
	path := writeFile(t, "bad.json", `{"meta":{"schema":2}}`)
	_, err := runCLI(t, t.TempDir(), "migrate", path)
	if !errors.Is(err, persist.ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestCLI_Verify(t *testing.T) {
	state := map[string]any{
		"player": map[string]any{"name": "Ari", "hp": 5, "maxHp": 9},
		"meta":   map[string]any{"schema": 6, "patch": "1.0.0"},
	}
	env, err := checksum.Seal(6, state, map[string]any{"schema": 6}, "2026-01-01T00:00:00Z", "xxh64")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	text, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	t.Run("Valid", func(t *testing.T) {
		out, err := runCLI(t, t.TempDir(), "verify", writeFile(t, "ok.json", string(text)))
		if err != nil {
			t.Fatalf("verify failed: %v\n%s", err, out)
		}
		var report SaveReport
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("Failed to parse report: %v", err)
		}
		if report.Format != "envelope" || !report.Checksum.OK || report.Schema != migrate.CurrentSchema {
			t.Errorf("Unexpected report: %+v", report)
		}
	})

	t.Run("Tampered", func(t *testing.T) {
		tampered := strings.Replace(string(text), `"hp":5`, `"hp":9`, 1)
		if tampered == string(text) {
			t.Fatal("Test setup: tamper did not change the text")
		}
		_, err := runCLI(t, t.TempDir(), "verify", writeFile(t, "bad.json", tampered))
		if err == nil || !strings.Contains(err.Error(), checksum.ReasonChecksumMismatch) {
			t.Errorf("Expected checksum mismatch, got %v", err)
		}
	})

	t.Run("Legacy", func(t *testing.T) {
		out, err := runCLI(t, t.TempDir(), "verify", writeFile(t, "legacy.json", `{"player":{"hp":1,"maxHp":2}}`))
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if !strings.Contains(out, `"format": "legacy"`) {
			t.Errorf("Expected legacy format, got %s", out)
		}
	})
}

func TestCLI_ConfigInit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POCKETRPG_DEBOUNCE_MS", "900")

	if _, err := runCLI(t, home, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, "persistence.yaml"))
	if err != nil {
		t.Fatalf("Expected persistence.yaml written: %v", err)
	}
	if !strings.Contains(string(data), "debounce_ms: 900") {
		t.Errorf("Expected env override persisted, got:\n%s", data)
	}
}

func TestCLI_Reset(t *testing.T) {
	home := t.TempDir()
	if _, err := runCLI(t, home, "new", "Ari"); err != nil {
		t.Fatalf("new failed: %v", err)
	}

	if _, err := runCLI(t, home, "reset"); err == nil {
		t.Fatal("Expected reset without --yes to be refused")
	}
	if _, err := runCLI(t, home, "load"); err != nil {
		t.Fatalf("Save should survive a refused reset: %v", err)
	}

	if _, err := runCLI(t, home, "reset", "--yes"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if _, err := runCLI(t, home, "load"); !errors.Is(err, persist.ErrNoSave) {
		t.Errorf("Expected ErrNoSave after reset, got %v", err)
	}
}
