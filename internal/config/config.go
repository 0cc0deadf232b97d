// Package config handles all configuration management for qilbeemem.
//
// Configuration is loaded from multiple sources in order of precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables (QILBEEMEM_*)
// 3. Configuration file (.qilbeemem.yaml)
// 4. Default values (lowest priority)
package config

import (
	"time"
)

// Config is the main configuration structure for qilbeemem.
// It contains all settings needed to run the memory engine.
type Config struct {
	// Storage configures the durable episode log
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Scoring selects the retention policy driving relevance
	Scoring ScoringConfig `mapstructure:"scoring" yaml:"scoring"`

	// Consolidation configures background and triggered passes
	Consolidation ConsolidationConfig `mapstructure:"consolidation" yaml:"consolidation"`

	// Limits bounds caller input
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// Cache configures the search result cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Audit configures the administrative audit trail
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Export configures the markdown vault exporter
	Export ExportConfig `mapstructure:"export" yaml:"export"`

	// Log configures logging
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// StorageConfig configures the durable episode log.
type StorageConfig struct {
	// Dir is the directory holding the log (default: ~/.qilbeemem/data)
	Dir string `mapstructure:"dir" yaml:"dir"`

	// SyncWrites forces an fsync on every commit. Disabling it trades
	// crash durability for write throughput.
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// GCInterval is how often the value log is garbage collected
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`

	// InMemory keeps the whole log in memory. Nothing survives a
	// restart; intended for tests and experiments.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// ScoringConfig selects the retention policy.
type ScoringConfig struct {
	// Policy is the policy name: "balanced", "retentive", "ephemeral",
	// or a custom policy from PolicyDir
	Policy string `mapstructure:"policy" yaml:"policy"`

	// PolicyDir is the directory containing custom policy files
	PolicyDir string `mapstructure:"policy_dir" yaml:"policy_dir"`
}

// ConsolidationConfig configures consolidation passes.
type ConsolidationConfig struct {
	// Auto enables the scheduled background pass
	Auto bool `mapstructure:"auto" yaml:"auto"`

	// Schedule is the cron expression for the background pass
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	// Threshold triggers a pass when an agent's active episode count
	// reaches it (0 = no count trigger)
	Threshold int `mapstructure:"threshold" yaml:"threshold"`

	// BatchSize is how many episodes a pass scores per lock hold
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// Workers is the size of the background worker pool
	Workers int `mapstructure:"workers" yaml:"workers"`

	// QueueSize is the backlog of queued passes before triggers are
	// dropped
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// LimitsConfig bounds caller input.
type LimitsConfig struct {
	// MaxFutureSkew is how far an event time may sit in the future
	// before the episode is rejected
	MaxFutureSkew time.Duration `mapstructure:"max_future_skew" yaml:"max_future_skew"`

	// DefaultRecallLimit is used when a recall or search passes no
	// limit
	DefaultRecallLimit int `mapstructure:"default_recall_limit" yaml:"default_recall_limit"`

	// MaxContentBytes caps the combined episode text size (0 =
	// unlimited)
	MaxContentBytes int `mapstructure:"max_content_bytes" yaml:"max_content_bytes"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	// Enabled enables caching
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxEntries is the maximum number of cached result sets
	MaxEntries int64 `mapstructure:"max_entries" yaml:"max_entries"`

	// TTL is the cache entry time-to-live
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AuditConfig configures the administrative audit trail.
type AuditConfig struct {
	// Enabled enables the audit database
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the audit database file
	Path string `mapstructure:"path" yaml:"path"`
}

// ExportConfig configures the markdown vault exporter.
type ExportConfig struct {
	// Vault is the vault root directory notes are written into
	Vault string `mapstructure:"vault" yaml:"vault"`

	// Folder is the folder inside the vault that receives agent
	// subfolders
	Folder string `mapstructure:"folder" yaml:"folder"`

	// Template is an optional custom note template file
	Template string `mapstructure:"template" yaml:"template"`

	// Tags are extra tags stamped on every exported note
	Tags []string `mapstructure:"tags" yaml:"tags"`

	// Index writes a per-agent index note linking every episode
	Index bool `mapstructure:"index" yaml:"index"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	// Storage validation
	if !c.Storage.InMemory && c.Storage.Dir == "" {
		return &ValidationError{Field: "storage.dir", Message: "storage directory is required"}
	}
	if c.Storage.GCInterval < 0 {
		return &ValidationError{Field: "storage.gc_interval", Message: "gc interval cannot be negative"}
	}

	// Scoring validation
	if c.Scoring.Policy == "" {
		return &ValidationError{Field: "scoring.policy", Message: "policy name is required"}
	}

	// Consolidation validation
	if c.Consolidation.BatchSize < 1 {
		return &ValidationError{Field: "consolidation.batch_size", Message: "batch size must be at least 1"}
	}
	if c.Consolidation.Threshold < 0 {
		return &ValidationError{Field: "consolidation.threshold", Message: "threshold cannot be negative"}
	}
	if c.Consolidation.Workers < 1 {
		return &ValidationError{Field: "consolidation.workers", Message: "worker count must be at least 1"}
	}
	if c.Consolidation.Auto && c.Consolidation.Schedule == "" {
		return &ValidationError{Field: "consolidation.schedule", Message: "schedule is required when auto consolidation is enabled"}
	}

	// Limits validation
	if c.Limits.MaxFutureSkew < 0 {
		return &ValidationError{Field: "limits.max_future_skew", Message: "future skew cannot be negative"}
	}
	if c.Limits.DefaultRecallLimit < 1 {
		return &ValidationError{Field: "limits.default_recall_limit", Message: "default recall limit must be at least 1"}
	}
	if c.Limits.MaxContentBytes < 0 {
		return &ValidationError{Field: "limits.max_content_bytes", Message: "max content bytes cannot be negative"}
	}

	// Cache validation
	if c.Cache.Enabled && c.Cache.MaxEntries < 1 {
		return &ValidationError{Field: "cache.max_entries", Message: "max entries must be at least 1 when cache is enabled"}
	}

	// Audit validation
	if c.Audit.Enabled && c.Audit.Path == "" {
		return &ValidationError{Field: "audit.path", Message: "audit database path is required when audit is enabled"}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		return &ValidationError{Field: "log.level", Message: "invalid level, must be one of: debug, info, warn, error"}
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Field + ": " + e.Message
}
