// app.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
	"github.com/alsub25/Pocket-RPG-sub006/internal/config"
	"github.com/alsub25/Pocket-RPG-sub006/internal/database"
	"github.com/alsub25/Pocket-RPG-sub006/internal/eventhub"
	"github.com/alsub25/Pocket-RPG-sub006/internal/game"
	"github.com/alsub25/Pocket-RPG-sub006/internal/persist"
	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
	"github.com/alsub25/Pocket-RPG-sub006/internal/watcher"
)

// App struct contains the core application state and managers
type App struct {
	ctx    context.Context
	mu     sync.RWMutex
	config *config.Config

	// Core managers
	codec       *storage.Codec
	dbManager   *database.Database
	fileStore   *storage.FileStore
	kv          storage.KV
	eventHub    *eventhub.EventHub
	saveManager *persist.Manager
	saveWatcher *watcher.Watcher
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// Startup loads config from the environment and brings up every manager
func (a *App) Startup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return a.StartupWithConfig(ctx, cfg)
}

// StartupWithConfig brings up every manager against an already resolved config
func (a *App) StartupWithConfig(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx = ctx
	a.config = cfg
	p := cfg.Persistence

	codec, err := storage.NewCodec(p.CompressionLevel)
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}
	a.codec = codec

	// Initialize EventHub (before managers that need it)
	a.eventHub = eventhub.New(ctx)

	switch p.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.SavesDir, codec)
		if err != nil {
			a.closeLocked()
			return fmt.Errorf("open save dir: %w", err)
		}
		a.fileStore = fs
		a.kv = fs
		log.Printf("[App] Saves stored in %s", fs.Dir())

		w, err := fs.Watch(p.Debounce(), func(e watcher.Event) {
			a.eventHub.EmitSavesChanged(eventhub.SavesChangedEvent{Key: e.Key, Op: string(e.Op)})
		})
		if err != nil {
			// Saves still work without change notifications
			log.Printf("[App] Failed to watch %s: %v", cfg.SavesDir, err)
		} else {
			a.saveWatcher = w
		}
	default:
		db, err := database.Open(cfg.DatabasePath, codec)
		if err != nil {
			a.closeLocked()
			return fmt.Errorf("open database: %w", err)
		}
		a.dbManager = db
		a.kv = db
	}

	opts := persist.DefaultOptions()
	opts.Keys = persist.KeysFor(p.KeyPrefix)
	opts.Debounce = p.Debounce()
	opts.RefuseOnCritical = p.RefuseOnCritical
	opts.Envelope = p.Envelope
	opts.ChecksumAlg = p.ChecksumAlg
	opts.Patch = p.Patch

	a.saveManager = persist.NewManager(ctx, a.kv, game.NewSystems(), audit.Default(), a.eventHub, opts)

	log.Printf("[App] Started with %s backend (prefix %q)", p.Backend, p.KeyPrefix)
	return nil
}

// Shutdown stops the autosave timer and closes the store
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Drop the trailing write before the store goes away
	if a.saveManager != nil {
		a.saveManager.Stop()
	}
	a.closeLocked()

	log.Printf("[App] Shutdown complete")
}

func (a *App) closeLocked() {
	if a.saveWatcher != nil {
		a.saveWatcher.Close()
		a.saveWatcher = nil
	}
	if a.dbManager != nil {
		a.dbManager.Close()
		a.dbManager = nil
	}
	if a.codec != nil {
		a.codec.Close()
		a.codec = nil
	}
}

// SetEventHubBroadcaster sets the broadcaster events are forwarded to
func (a *App) SetEventHubBroadcaster(broadcaster eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.SetBroadcaster(broadcaster)
	}
}

// logBroadcaster writes every hub event to a logger as one JSON line
type logBroadcaster struct {
	logger *log.Logger
}

func (b *logBroadcaster) BroadcastEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Printf("[Event] %s (unencodable payload: %v)", eventType, err)
		return
	}
	b.logger.Printf("[Event] %s %s", eventType, data)
}
