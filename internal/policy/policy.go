// Package policy defines retention policies: the tunable constants that
// drive relevance scoring and consolidation. Policies ship as embedded
// presets and can be overridden from a user directory.
package policy

import (
	"fmt"
	"math"
)

// Weights are the relative contributions of the four relevance factors.
// They must sum to 1.0 so scores stay in [0, 1].
type Weights struct {
	Recency      float64 `yaml:"recency" json:"recency"`
	Frequency    float64 `yaml:"frequency" json:"frequency"`
	Importance   float64 `yaml:"importance" json:"importance"`
	Connectivity float64 `yaml:"connectivity" json:"connectivity"`
}

// Policy holds every tunable the scorer and the consolidation engine
// read. A policy is immutable once loaded.
type Policy struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// HalfLifeDays is the decay constant for the recency factor:
	// recency = exp(-age_days / HalfLifeDays).
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days"`

	// FrequencyCap is the access count at which the frequency factor
	// saturates at 1.0.
	FrequencyCap float64 `yaml:"frequency_cap" json:"frequency_cap"`

	// ConnectivityCap is the connection count at which the
	// connectivity factor saturates at 1.0.
	ConnectivityCap float64 `yaml:"connectivity_cap" json:"connectivity_cap"`

	Weights Weights `yaml:"weights" json:"weights"`

	// PromotionThreshold moves an active episode to consolidated when
	// its score reaches it.
	PromotionThreshold float64 `yaml:"promotion_threshold" json:"promotion_threshold"`

	// ForgetThreshold tombstones an active episode when its score
	// falls below it.
	ForgetThreshold float64 `yaml:"forget_threshold" json:"forget_threshold"`

	// PinImportance protects episodes at or above this importance from
	// ever being forgotten automatically.
	PinImportance float64 `yaml:"pin_importance" json:"pin_importance"`

	// MinRelevance is the default floor for explicit forget requests.
	MinRelevance float64 `yaml:"min_relevance" json:"min_relevance"`
}

// Default returns the balanced policy. It mirrors the embedded
// balanced preset so the engine works without the loader.
func Default() *Policy {
	return &Policy{
		Name:            "balanced",
		Description:     "Reasonable retention for general-purpose agents",
		HalfLifeDays:    30,
		FrequencyCap:    20,
		ConnectivityCap: 10,
		Weights: Weights{
			Recency:      0.4,
			Frequency:    0.2,
			Importance:   0.3,
			Connectivity: 0.1,
		},
		PromotionThreshold: 0.7,
		ForgetThreshold:    0.2,
		PinImportance:      0.9,
		MinRelevance:       0.1,
	}
}

// Validate checks that every tunable is inside its legal range.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy has no name")
	}
	if p.HalfLifeDays <= 0 {
		return fmt.Errorf("policy %s: half_life_days must be positive, got %v", p.Name, p.HalfLifeDays)
	}
	if p.FrequencyCap < 1 {
		return fmt.Errorf("policy %s: frequency_cap must be at least 1, got %v", p.Name, p.FrequencyCap)
	}
	if p.ConnectivityCap < 1 {
		return fmt.Errorf("policy %s: connectivity_cap must be at least 1, got %v", p.Name, p.ConnectivityCap)
	}

	w := p.Weights
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"recency", w.Recency},
		{"frequency", w.Frequency},
		{"importance", w.Importance},
		{"connectivity", w.Connectivity},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("policy %s: weight %s must be in [0, 1], got %v", p.Name, f.name, f.value)
		}
	}
	if sum := w.Recency + w.Frequency + w.Importance + w.Connectivity; math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("policy %s: weights must sum to 1.0, got %v", p.Name, sum)
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"promotion_threshold", p.PromotionThreshold},
		{"forget_threshold", p.ForgetThreshold},
		{"pin_importance", p.PinImportance},
		{"min_relevance", p.MinRelevance},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("policy %s: %s must be in [0, 1], got %v", p.Name, f.name, f.value)
		}
	}
	if p.ForgetThreshold >= p.PromotionThreshold {
		return fmt.Errorf("policy %s: forget_threshold %v must be below promotion_threshold %v",
			p.Name, p.ForgetThreshold, p.PromotionThreshold)
	}
	return nil
}
