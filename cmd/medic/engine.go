package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/medic/internal/ai"
	"github.com/steveyegge/medic/internal/cache"
	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/diagnosis"
	"github.com/steveyegge/medic/internal/keylock"
	"github.com/steveyegge/medic/internal/procctl"
	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/remediation"
	"github.com/steveyegge/medic/internal/retry"
	"github.com/steveyegge/medic/internal/storage"
	"github.com/steveyegge/medic/internal/storage/sqlite"
)

// engine bundles the wired collaborators for one CLI invocation
type engine struct {
	store       storage.AnalysisStore
	registry    *remediation.Registry
	coordinator *diagnosis.Coordinator
	caches      *cache.Registry
	closers     []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// sqliteStore returns the SQLite adapter when that backend is in use
func (e *engine) sqliteStore() (*sqlite.SQLiteStorage, bool) {
	s, ok := e.store.(*sqlite.SQLiteStorage)
	return s, ok
}

// resolveDBPath applies discovery when no path was configured. A fresh
// project gets .medic/medic.db in the working directory.
func resolveDBPath(sc config.StorageConfig) (string, error) {
	if sc.Path != "" {
		return sc.Path, nil
	}
	if found, err := storage.DiscoverDatabase(); err == nil {
		return found, nil
	}
	if err := os.MkdirAll(filepath.Dir(storage.DefaultDBPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.DefaultDBPath, nil
}

func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	logger := slog.Default()
	e := &engine{}

	storeCfg := cfg.Storage.Store()
	if storeCfg.Backend == storage.BackendSQLite {
		path, err := resolveDBPath(cfg.Storage)
		if err != nil {
			return nil, err
		}
		storeCfg.Path = path
	}
	store, err := storage.NewStorage(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", storeCfg.Backend, err)
	}
	e.store = store
	e.closers = append(e.closers, store.Close)
	logger.Debug("storage opened", "backend", storeCfg.Backend, "path", storeCfg.Path)

	e.caches = cache.NewRegistry()
	models := cache.NewMemory("models", cfg.Cache.TTL)
	if err := e.caches.Register(models); err != nil {
		e.Close()
		return nil, err
	}
	if cfg.Cache.Redis.URL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.Redis, cfg.Cache.TTL)
		if err != nil {
			logger.Warn("redis cache unavailable, continuing without it", "error", err)
		} else if err := e.caches.Register(rc); err != nil {
			_ = rc.Close()
			logger.Warn("redis cache not registered", "error", err)
		} else {
			e.closers = append(e.closers, rc.Close)
		}
	}

	locks := keylock.New()
	proc := procctl.NewLocal(procctl.Config{
		RestartCommand:  cfg.Engine.RestartCommand,
		ServiceCommands: cfg.Engine.ServiceCommands,
		Logger:          logger,
	})
	reconnector := reconnect.New(reconnect.Config{
		Catalog:        cfg.Services.Catalog(),
		Restarter:      proc,
		Locks:          locks,
		DialTimeout:    cfg.Services.DialTimeout,
		HealthTimeout:  cfg.Services.HealthTimeout,
		SettleInterval: cfg.Services.SettleInterval,
		Logger:         logger,
	})

	tuners := map[string]remediation.StorageTuner{}
	if s, ok := e.sqliteStore(); ok {
		tuners[remediation.DefaultStorageHandle] = s
	}
	e.registry = remediation.NewRegistry(remediation.Deps{
		Storage:         tuners,
		Reconnector:     reconnector,
		Process:         proc,
		Caches:          e.caches,
		Locks:           locks,
		Scheduler:       &retry.Scheduler{Logger: logger},
		PortReleaseWait: cfg.Engine.PortReleaseWait,
		Logger:          logger,
	})

	dcfg := diagnosis.Config{
		Store:       e.store,
		AIEnabled:   cfg.AI.Enabled,
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Models:      models,
		Logger:      logger,
	}
	if cfg.Engine.RemediationEnabled {
		dcfg.Remediator = e.registry
	}
	if cfg.AI.Enabled {
		client, err := ai.NewAnthropic(ai.AnthropicConfig{
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			MaxTokens: cfg.AI.MaxTokens,
		})
		if err != nil {
			logger.Warn("AI diagnosis disabled", "error", err)
			dcfg.AIEnabled = false
		} else {
			guard := cfg.AI.Guard()
			guard.Logger = logger
			dcfg.AI = ai.NewGuarded(client, guard)
		}
	}
	e.coordinator = diagnosis.New(dcfg)
	return e, nil
}

// mustEngine opens the engine or exits
func mustEngine(ctx context.Context) *engine {
	e, err := openEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return e
}
