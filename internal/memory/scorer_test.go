package memory

import (
	"math"
	"testing"
	"time"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
)

// fastDecayPolicy is the balanced policy with a 7-day half life, the
// configuration the worked consolidation scenario uses.
func fastDecayPolicy() *policy.Policy {
	pol := policy.Default()
	pol.HalfLifeDays = 7
	return pol
}

func TestScoreAgeScenario(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := fastDecayPolicy()

	// Three episodes aged 0, 10 and 40 days, neutral importance, never
	// accessed, unconnected. Under the balanced weights with a 7-day
	// half life the 40-day episode lands below the 0.2 forget
	// threshold and the fresh one stays above it.
	tests := []struct {
		name    string
		ageDays int
		want    float64
	}{
		{"fresh", 0, 0.5500},
		{"ten days", 10, 0.2459},
		{"forty days", 40, 0.1513},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ScoreInput{
				EventTime:  now.AddDate(0, 0, -tt.ageDays),
				Importance: 0.5,
			}
			got := Score(in, now, pol)
			if math.Abs(got-tt.want) > 0.0005 {
				t.Errorf("Score for age %dd = %.4f, want %.4f", tt.ageDays, got, tt.want)
			}
		})
	}

	old := Score(ScoreInput{EventTime: now.AddDate(0, 0, -40), Importance: 0.5}, now, pol)
	if old >= pol.ForgetThreshold {
		t.Errorf("40-day score %.4f should be below forget threshold %.2f", old, pol.ForgetThreshold)
	}
	fresh := Score(ScoreInput{EventTime: now, Importance: 0.5}, now, pol)
	if fresh < pol.ForgetThreshold {
		t.Errorf("Fresh score %.4f should be above forget threshold %.2f", fresh, pol.ForgetThreshold)
	}
}

func TestScoreDeterministic(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()
	in := ScoreInput{
		EventTime:   now.Add(-37 * time.Hour),
		AccessCount: 5,
		Importance:  0.62,
		Connections: 3,
	}

	first := Score(in, now, pol)
	for i := 0; i < 10; i++ {
		if got := Score(in, now, pol); got != first {
			t.Fatalf("Score not deterministic: run %d got %v, want %v", i, got, first)
		}
	}
}

func TestScoreFutureEventTime(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()

	// A future event time counts as age zero, never as negative age,
	// so recency contributes exactly its full weight.
	future := Score(ScoreInput{EventTime: now.AddDate(0, 0, 3), Importance: 0.5}, now, pol)
	present := Score(ScoreInput{EventTime: now, Importance: 0.5}, now, pol)
	if future != present {
		t.Errorf("Future event scored %v, same-instant event scored %v", future, present)
	}
}

func TestScoreFrequencySaturation(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()
	base := ScoreInput{EventTime: now, Importance: 0.5}

	never := base
	atCap := base
	atCap.AccessCount = int64(pol.FrequencyCap)
	farPastCap := base
	farPastCap.AccessCount = int64(pol.FrequencyCap) * 50

	if got, want := Score(atCap, now, pol), Score(farPastCap, now, pol); got != want {
		t.Errorf("Frequency should saturate at the cap: cap=%v, 50x cap=%v", got, want)
	}
	if got := Score(never, now, pol); got >= Score(atCap, now, pol) {
		t.Errorf("Zero accesses should score below the cap: %v", got)
	}

	once := base
	once.AccessCount = 1
	if Score(once, now, pol) <= Score(never, now, pol) {
		t.Error("A single access should raise the score above zero accesses")
	}
}

func TestScoreConnectivitySaturation(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()
	base := ScoreInput{EventTime: now, Importance: 0.5}

	atCap := base
	atCap.Connections = int(pol.ConnectivityCap)
	pastCap := base
	pastCap.Connections = int(pol.ConnectivityCap) * 10

	if got, want := Score(atCap, now, pol), Score(pastCap, now, pol); got != want {
		t.Errorf("Connectivity should saturate at the cap: cap=%v, 10x cap=%v", got, want)
	}

	half := base
	half.Connections = int(pol.ConnectivityCap) / 2
	if Score(half, now, pol) >= Score(atCap, now, pol) {
		t.Error("Half-cap connectivity should score below full cap")
	}
}

func TestScoreBounds(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()

	maxed := ScoreInput{
		EventTime:   now,
		AccessCount: int64(pol.FrequencyCap) * 10,
		Importance:  1.0,
		Connections: int(pol.ConnectivityCap) * 10,
	}
	if got := Score(maxed, now, pol); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Maxed factors should score 1.0, got %v", got)
	}

	// Ancient, untouched, worthless and unconnected bottoms out near
	// zero but never below it.
	floor := ScoreInput{EventTime: now.AddDate(-50, 0, 0)}
	if got := Score(floor, now, pol); got < 0 || got > 0.01 {
		t.Errorf("Floor input should score near zero, got %v", got)
	}
}

func TestScoreDecaysWithAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pol := policy.Default()

	prev := math.Inf(1)
	for _, ageDays := range []int{0, 1, 7, 30, 90, 365} {
		got := Score(ScoreInput{EventTime: now.AddDate(0, 0, -ageDays), Importance: 0.5}, now, pol)
		if got >= prev {
			t.Errorf("Score at age %dd = %v, expected strictly below %v", ageDays, got, prev)
		}
		prev = got
	}
}
