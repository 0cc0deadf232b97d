package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configFileName = ".qilbeemem.yaml"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	// Set config name and type
	v.SetConfigName(".qilbeemem")
	v.SetConfigType("yaml")

	// Add search paths in order of priority
	v.AddConfigPath(".")              // Current directory (highest priority)
	v.AddConfigPath("$HOME")          // Home directory
	v.AddConfigPath("/etc/qilbeemem") // System config (lowest priority)

	// Environment variable support
	v.SetEnvPrefix("QILBEEMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// SetConfigFile sets a specific config file to use.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
	l.v.SetConfigFile(path)
}

// Load loads the configuration from all sources.
// Priority (highest to lowest):
// 1. Explicit config file (if set via SetConfigFile)
// 2. Environment variables (QILBEEMEM_*)
// 3. Config file from search paths (.qilbeemem.yaml)
// 4. Default values
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Set defaults in viper
	l.setDefaults(cfg)

	// Try to read config file
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file found but error reading it
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found - that's ok, we'll use defaults
	}

	// Unmarshal into config struct
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate the final config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets all default values in viper.
func (l *Loader) setDefaults(cfg *Config) {
	// Storage defaults
	l.v.SetDefault("storage.dir", cfg.Storage.Dir)
	l.v.SetDefault("storage.sync_writes", cfg.Storage.SyncWrites)
	l.v.SetDefault("storage.gc_interval", cfg.Storage.GCInterval)
	l.v.SetDefault("storage.in_memory", cfg.Storage.InMemory)

	// Scoring defaults
	l.v.SetDefault("scoring.policy", cfg.Scoring.Policy)
	l.v.SetDefault("scoring.policy_dir", cfg.Scoring.PolicyDir)

	// Consolidation defaults
	l.v.SetDefault("consolidation.auto", cfg.Consolidation.Auto)
	l.v.SetDefault("consolidation.schedule", cfg.Consolidation.Schedule)
	l.v.SetDefault("consolidation.threshold", cfg.Consolidation.Threshold)
	l.v.SetDefault("consolidation.batch_size", cfg.Consolidation.BatchSize)
	l.v.SetDefault("consolidation.workers", cfg.Consolidation.Workers)
	l.v.SetDefault("consolidation.queue_size", cfg.Consolidation.QueueSize)

	// Limits defaults
	l.v.SetDefault("limits.max_future_skew", cfg.Limits.MaxFutureSkew)
	l.v.SetDefault("limits.default_recall_limit", cfg.Limits.DefaultRecallLimit)
	l.v.SetDefault("limits.max_content_bytes", cfg.Limits.MaxContentBytes)

	// Cache defaults
	l.v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	l.v.SetDefault("cache.max_entries", cfg.Cache.MaxEntries)
	l.v.SetDefault("cache.ttl", cfg.Cache.TTL)

	// Audit defaults
	l.v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	l.v.SetDefault("audit.path", cfg.Audit.Path)

	// Export defaults
	l.v.SetDefault("export.vault", cfg.Export.Vault)
	l.v.SetDefault("export.folder", cfg.Export.Folder)
	l.v.SetDefault("export.template", cfg.Export.Template)
	l.v.SetDefault("export.tags", cfg.Export.Tags)
	l.v.SetDefault("export.index", cfg.Export.Index)

	// Log defaults
	l.v.SetDefault("log.level", cfg.Log.Level)
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}

// FindConfigFile searches for a config file and returns its path.
// Returns empty string if no config file is found.
func FindConfigFile() string {
	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		if abs, err := filepath.Abs(configFileName); err == nil {
			return abs
		}
	}

	// Check home directory
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Check /etc
	etcPath := "/etc/qilbeemem/" + configFileName
	if _, err := os.Stat(etcPath); err == nil {
		return etcPath
	}

	return ""
}
