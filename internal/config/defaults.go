package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
// These defaults run a durable single-node engine out of the box.
func DefaultConfig() *Config {
	baseDir := defaultBaseDir()

	return &Config{
		Storage:       defaultStorageConfig(baseDir),
		Scoring:       defaultScoringConfig(baseDir),
		Consolidation: defaultConsolidationConfig(),
		Limits:        defaultLimitsConfig(),
		Cache:         defaultCacheConfig(),
		Audit:         defaultAuditConfig(baseDir),
		Export:        defaultExportConfig(),
		Log:           LogConfig{Level: "info"},
	}
}

// defaultBaseDir returns the default data directory path.
func defaultBaseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".qilbeemem")
}

// defaultStorageConfig returns the default storage configuration.
func defaultStorageConfig(baseDir string) StorageConfig {
	return StorageConfig{
		Dir:        filepath.Join(baseDir, "data"),
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
		InMemory:   false,
	}
}

// defaultScoringConfig returns the default scoring configuration.
func defaultScoringConfig(baseDir string) ScoringConfig {
	return ScoringConfig{
		Policy:    "balanced",
		PolicyDir: filepath.Join(baseDir, "policies"),
	}
}

// defaultConsolidationConfig returns the default consolidation
// configuration.
func defaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		Auto:      true,
		Schedule:  "@every 1h",
		Threshold: 1000,
		BatchSize: 100,
		Workers:   2,
		QueueSize: 16,
	}
}

// defaultLimitsConfig returns the default limits configuration.
func defaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxFutureSkew:      5 * time.Minute,
		DefaultRecallLimit: 20,
		MaxContentBytes:    1 << 20,
	}
}

// defaultCacheConfig returns the default cache configuration.
func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		MaxEntries: 1024,
		TTL:        5 * time.Minute,
	}
}

// defaultAuditConfig returns the default audit configuration.
func defaultAuditConfig(baseDir string) AuditConfig {
	return AuditConfig{
		Enabled: true,
		Path:    filepath.Join(baseDir, "audit.db"),
	}
}

// defaultExportConfig returns the default export configuration. The
// vault path stays empty; exporting is opt-in per invocation.
func defaultExportConfig() ExportConfig {
	return ExportConfig{
		Vault:  "",
		Folder: "memory",
		Index:  true,
	}
}
