package commands

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/config"
)

// The starter template is read back by viper in production, so parse
// it the same way here.
func TestConfigTemplateParses(t *testing.T) {
	content := fmt.Sprintf(configTemplate, "/data", "/policies", "/audit.db")

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		t.Fatalf("template does not parse as YAML: %v", err)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("template does not unmarshal: %v", err)
	}

	if cfg.Storage.Dir != "/data" {
		t.Errorf("Storage.Dir = %q, want %q", cfg.Storage.Dir, "/data")
	}
	if cfg.Storage.GCInterval != 5*time.Minute {
		t.Errorf("Storage.GCInterval = %v, want 5m", cfg.Storage.GCInterval)
	}
	if cfg.Scoring.Policy != "balanced" {
		t.Errorf("Scoring.Policy = %q, want %q", cfg.Scoring.Policy, "balanced")
	}
	if cfg.Consolidation.Schedule != "@every 1h" {
		t.Errorf("Consolidation.Schedule = %q, want %q", cfg.Consolidation.Schedule, "@every 1h")
	}
	if cfg.Consolidation.Threshold != 1000 {
		t.Errorf("Consolidation.Threshold = %d, want 1000", cfg.Consolidation.Threshold)
	}
	if cfg.Limits.MaxContentBytes != 1<<20 {
		t.Errorf("Limits.MaxContentBytes = %d, want %d", cfg.Limits.MaxContentBytes, 1<<20)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want true")
	}
	if cfg.Audit.Path != "/audit.db" {
		t.Errorf("Audit.Path = %q, want %q", cfg.Audit.Path, "/audit.db")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("template defaults fail validation: %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWD) })

	configInitForce = false
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}

	data, err := os.ReadFile(".qilbeemem.yaml")
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "policy: balanced") {
		t.Error("written config missing the default policy")
	}

	// A second run must refuse to overwrite
	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Error("runConfigInit() overwrote an existing file without --force")
	}

	configInitForce = true
	defer func() { configInitForce = false }()
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Errorf("runConfigInit() with force error = %v", err)
	}
}
