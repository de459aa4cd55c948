// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Load(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv("POCKETRPG_HOME", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HomeDir == "" {
		t.Error("HomeDir should not be empty")
	}
	if cfg.DataDir != dir {
		t.Errorf("Expected DataDir %s, got %s", dir, cfg.DataDir)
	}

	// Verify directories exist
	for _, d := range []string{cfg.DataDir, cfg.SavesDir, cfg.LogDir} {
		if _, err := os.Stat(d); os.IsNotExist(err) {
			t.Errorf("%s should be created", d)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	p := cfg.Persistence
	if p.Debounce() != 350*time.Millisecond {
		t.Errorf("Expected 350ms debounce, got %v", p.Debounce())
	}
	if !p.RefuseOnCritical || !p.Envelope {
		t.Errorf("Expected refuse_on_critical and envelope on by default, got %+v", p)
	}
	if p.Backend != BackendSQLite {
		t.Errorf("Expected sqlite backend, got %s", p.Backend)
	}
}

func TestConfig_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	yml := "debounce_ms: 1000\nbackend: file\nchecksum_alg: xxh64\npatch: 1.4.2\n"
	if err := os.WriteFile(filepath.Join(dir, "persistence.yaml"), []byte(yml), 0644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	t.Setenv("POCKETRPG_DEBOUNCE_MS", "50")
	t.Setenv("POCKETRPG_REFUSE_ON_CRITICAL", "false")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	p := cfg.Persistence
	if p.DebounceMS != 50 {
		t.Errorf("Expected env to override yaml debounce, got %d", p.DebounceMS)
	}
	if p.Backend != BackendFile || p.ChecksumAlg != "xxh64" || p.Patch != "1.4.2" {
		t.Errorf("Expected yaml values kept, got %+v", p)
	}
	if p.RefuseOnCritical {
		t.Error("Expected env to disable refuse_on_critical")
	}
	if !p.Envelope {
		t.Error("Fields absent from yaml and env should keep defaults")
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"negative debounce", "debounce_ms: -1\n", "debounce_ms"},
		{"unknown alg", "checksum_alg: md5\n", "checksum_alg"},
		{"unknown backend", "backend: redis\n", "backend"},
		{"bad level", "compression_level: 40\n", "compression_level"},
		{"bad yaml", "debounce_ms: [\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "persistence.yaml"), []byte(tt.yml), 0644); err != nil {
				t.Fatalf("Failed to write settings: %v", err)
			}
			_, err := LoadFrom(dir)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfig_WriteSettings(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	cfg.Persistence.DebounceMS = 900
	if err := cfg.WriteSettings(); err != nil {
		t.Fatalf("WriteSettings failed: %v", err)
	}

	again, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if again.Persistence.DebounceMS != 900 {
		t.Errorf("Expected 900, got %d", again.Persistence.DebounceMS)
	}
}
