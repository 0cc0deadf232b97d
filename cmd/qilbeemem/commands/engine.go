package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/audit"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/config"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/logger"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
)

// loadConfig loads the effective configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger. The --verbose and --quiet flags
// override the configured level.
func newLogger(cfg *config.Config) *logger.Logger {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	if isVerbose() {
		level = logger.LevelDebug
	}
	if isQuiet() {
		level = logger.LevelError
	}
	return logger.New(level, os.Stderr)
}

// openEngine loads the configuration and opens the memory engine it
// describes. The caller must Close the returned engine.
func openEngine() (*memory.Memory, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	mem, err := openEngineWith(cfg)
	if err != nil {
		return nil, nil, err
	}
	return mem, cfg, nil
}

// openEngineWith opens the memory engine for an already loaded
// configuration.
func openEngineWith(cfg *config.Config) (*memory.Memory, error) {
	pol, err := policy.NewLoader(cfg.Scoring.PolicyDir).Get(cfg.Scoring.Policy)
	if err != nil {
		return nil, fmt.Errorf("resolving policy %q: %w", cfg.Scoring.Policy, err)
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		_ = os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0750) //nolint:errcheck // Best effort directory creation
		auditStore, err = audit.NewStore(audit.StoreConfig{Path: cfg.Audit.Path})
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
	}

	cacheEntries := cfg.Cache.MaxEntries
	if !cfg.Cache.Enabled {
		cacheEntries = 0
	}

	mem, err := memory.Open(memory.Options{
		Dir:                    cfg.Storage.Dir,
		InMemory:               cfg.Storage.InMemory,
		SyncWrites:             cfg.Storage.SyncWrites,
		Policy:                 pol,
		ConsolidationThreshold: cfg.Consolidation.Threshold,
		BatchSize:              cfg.Consolidation.BatchSize,
		Workers:                cfg.Consolidation.Workers,
		QueueSize:              cfg.Consolidation.QueueSize,
		MaxFutureSkew:          cfg.Limits.MaxFutureSkew,
		DefaultRecallLimit:     cfg.Limits.DefaultRecallLimit,
		MaxContentBytes:        cfg.Limits.MaxContentBytes,
		CacheEntries:           cacheEntries,
		CacheTTL:               cfg.Cache.TTL,
		GCInterval:             cfg.Storage.GCInterval,
		Audit:                  auditStore,
		Logger:                 newLogger(cfg),
	})
	if err != nil {
		// The engine only takes ownership of the audit store once
		// Open succeeds.
		if auditStore != nil {
			_ = auditStore.Close()
		}
		return nil, fmt.Errorf("opening memory engine: %w", err)
	}

	return mem, nil
}
