// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Backends for raw key storage
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds resolved paths and persistence settings
type Config struct {
	HomeDir      string
	DataDir      string
	DatabasePath string
	SavesDir     string
	LogDir       string
	SettingsPath string

	Persistence Persistence
}

// Persistence tunes how saves are scheduled, sealed and stored. Values come
// from persistence.yaml and are then overridden by POCKETRPG_* variables.
type Persistence struct {
	DebounceMS       int    `yaml:"debounce_ms" env:"POCKETRPG_DEBOUNCE_MS"`
	RefuseOnCritical bool   `yaml:"refuse_on_critical" env:"POCKETRPG_REFUSE_ON_CRITICAL"`
	Envelope         bool   `yaml:"envelope" env:"POCKETRPG_ENVELOPE"`
	ChecksumAlg      string `yaml:"checksum_alg" env:"POCKETRPG_CHECKSUM_ALG"`
	CompressionLevel int    `yaml:"compression_level" env:"POCKETRPG_COMPRESSION_LEVEL"`
	Backend          string `yaml:"backend" env:"POCKETRPG_BACKEND"`
	KeyPrefix        string `yaml:"key_prefix" env:"POCKETRPG_KEY_PREFIX"`
	Patch            string `yaml:"patch" env:"POCKETRPG_PATCH"`
}

// DefaultPersistence returns the built-in persistence settings
func DefaultPersistence() Persistence {
	return Persistence{
		DebounceMS:       350,
		RefuseOnCritical: true,
		Envelope:         true,
		ChecksumAlg:      "fnv1a32",
		CompressionLevel: 3,
		Backend:          BackendSQLite,
		KeyPrefix:        "pocketrpg",
		Patch:            "dev",
	}
}

// Debounce returns the autosave coalescing window
func (p Persistence) Debounce() time.Duration {
	return time.Duration(p.DebounceMS) * time.Millisecond
}

// Validate rejects settings the persistence layer cannot honor
func (p Persistence) Validate() error {
	if p.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be >= 0, got %d", p.DebounceMS)
	}
	switch p.ChecksumAlg {
	case "fnv1a32", "xxh64":
	default:
		return fmt.Errorf("unknown checksum_alg %q", p.ChecksumAlg)
	}
	switch p.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
	if p.CompressionLevel < 1 || p.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be in [1,22], got %d", p.CompressionLevel)
	}
	if p.KeyPrefix == "" {
		return errors.New("key_prefix must not be empty")
	}
	return nil
}

type location struct {
	Home string `env:"POCKETRPG_HOME"`
}

// Load resolves the data directory (~/.pocketrpg, or $POCKETRPG_HOME) and
// reads persistence settings from it
func Load() (*Config, error) {
	var loc location
	if err := env.Parse(&loc); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := loc.Home
	if dataDir == "" {
		dataDir = filepath.Join(home, ".pocketrpg")
	}

	cfg, err := LoadFrom(dataDir)
	if err != nil {
		return nil, err
	}
	cfg.HomeDir = home
	return cfg, nil
}

// LoadFrom builds a Config rooted at dataDir, creating its directories
func LoadFrom(dataDir string) (*Config, error) {
	cfg := &Config{
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "saves.db"),
		SavesDir:     filepath.Join(dataDir, "saves"),
		LogDir:       filepath.Join(dataDir, "logs"),
		SettingsPath: filepath.Join(dataDir, "persistence.yaml"),
		Persistence:  DefaultPersistence(),
	}

	// Ensure directories exist
	for _, dir := range []string{cfg.DataDir, cfg.SavesDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(cfg.SettingsPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg.Persistence); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfg.SettingsPath, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read %s: %w", cfg.SettingsPath, err)
	}

	if err := env.Parse(&cfg.Persistence); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Persistence.Validate(); err != nil {
		return nil, fmt.Errorf("persistence settings: %w", err)
	}
	return cfg, nil
}

// WriteSettings stores the current persistence settings to persistence.yaml
func (c *Config) WriteSettings() error {
	data, err := yaml.Marshal(c.Persistence)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(c.SettingsPath, data, 0644)
}
