package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()

	if p.Name != "balanced" {
		t.Errorf("expected balanced, got %s", p.Name)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy should validate: %v", err)
	}
}

func TestEmbeddedPresets(t *testing.T) {
	loader := NewLoader("")

	policies, err := loader.Load()
	if err != nil {
		t.Fatalf("loading embedded presets: %v", err)
	}

	for _, name := range []string{"balanced", "retentive", "ephemeral"} {
		p, ok := policies[name]
		if !ok {
			t.Errorf("missing embedded preset %s", name)
			continue
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %s should validate: %v", name, err)
		}
	}
}

func TestEmbeddedMatchesDefault(t *testing.T) {
	loader := NewLoader("")

	p, err := loader.Get("balanced")
	if err != nil {
		t.Fatalf("loading balanced: %v", err)
	}

	def := Default()
	if p.HalfLifeDays != def.HalfLifeDays {
		t.Errorf("half_life_days drifted: embedded %v, Default() %v", p.HalfLifeDays, def.HalfLifeDays)
	}
	if p.Weights != def.Weights {
		t.Errorf("weights drifted: embedded %+v, Default() %+v", p.Weights, def.Weights)
	}
	if p.PromotionThreshold != def.PromotionThreshold || p.ForgetThreshold != def.ForgetThreshold {
		t.Errorf("thresholds drifted: embedded %v/%v, Default() %v/%v",
			p.PromotionThreshold, p.ForgetThreshold, def.PromotionThreshold, def.ForgetThreshold)
	}
}

func TestGetUnknownPolicy(t *testing.T) {
	loader := NewLoader("")

	_, err := loader.Get("does-not-exist")
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if !strings.Contains(err.Error(), "balanced") {
		t.Errorf("error should list available policies, got: %v", err)
	}
}

func TestCustomPolicyDir(t *testing.T) {
	dir := t.TempDir()

	custom := `name: sieve
description: test policy
half_life_days: 3
frequency_cap: 5
connectivity_cap: 5
weights:
  recency: 0.7
  frequency: 0.1
  importance: 0.1
  connectivity: 0.1
promotion_threshold: 0.9
forget_threshold: 0.5
pin_importance: 0.99
min_relevance: 0.4
`
	if err := os.WriteFile(filepath.Join(dir, "sieve.yaml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir)
	p, err := loader.Get("sieve")
	if err != nil {
		t.Fatalf("loading custom policy: %v", err)
	}
	if p.HalfLifeDays != 3 {
		t.Errorf("expected half_life_days 3, got %v", p.HalfLifeDays)
	}

	// Embedded presets remain available alongside custom ones
	if _, err := loader.Get("balanced"); err != nil {
		t.Errorf("embedded preset should still load: %v", err)
	}
}

func TestCustomPolicyOverridesPreset(t *testing.T) {
	dir := t.TempDir()

	override := `name: balanced
half_life_days: 7
frequency_cap: 20
connectivity_cap: 10
weights:
  recency: 0.4
  frequency: 0.2
  importance: 0.3
  connectivity: 0.1
promotion_threshold: 0.7
forget_threshold: 0.2
pin_importance: 0.9
min_relevance: 0.1
`
	if err := os.WriteFile(filepath.Join(dir, "balanced.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir)
	p, err := loader.Get("balanced")
	if err != nil {
		t.Fatalf("loading overridden policy: %v", err)
	}
	if p.HalfLifeDays != 7 {
		t.Errorf("custom dir should override preset, got half_life_days %v", p.HalfLifeDays)
	}
}

func TestPolicyNameFallback(t *testing.T) {
	dir := t.TempDir()

	unnamed := `half_life_days: 10
frequency_cap: 10
connectivity_cap: 10
weights:
  recency: 0.4
  frequency: 0.2
  importance: 0.3
  connectivity: 0.1
promotion_threshold: 0.7
forget_threshold: 0.2
pin_importance: 0.9
min_relevance: 0.1
`
	if err := os.WriteFile(filepath.Join(dir, "scratch.yaml"), []byte(unnamed), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir)
	if _, err := loader.Get("scratch"); err != nil {
		t.Errorf("expected file name fallback, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Policy { return Default() }

	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(p *Policy) {},
			wantErr: "",
		},
		{
			name:    "weights must sum to one",
			mutate:  func(p *Policy) { p.Weights.Recency = 0.9 },
			wantErr: "sum to 1.0",
		},
		{
			name:    "negative weight",
			mutate:  func(p *Policy) { p.Weights.Recency = -0.1; p.Weights.Importance = 0.8 },
			wantErr: "must be in [0, 1]",
		},
		{
			name:    "zero half life",
			mutate:  func(p *Policy) { p.HalfLifeDays = 0 },
			wantErr: "half_life_days",
		},
		{
			name:    "forget above promotion",
			mutate:  func(p *Policy) { p.ForgetThreshold = 0.8 },
			wantErr: "below promotion_threshold",
		},
		{
			name:    "promotion out of range",
			mutate:  func(p *Policy) { p.PromotionThreshold = 1.5 },
			wantErr: "promotion_threshold",
		},
		{
			name:    "frequency cap below one",
			mutate:  func(p *Policy) { p.FrequencyCap = 0 },
			wantErr: "frequency_cap",
		},
		{
			name:    "missing name",
			mutate:  func(p *Policy) { p.Name = "" },
			wantErr: "no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
