package memory

import (
	"math"
	"time"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
)

// ScoreInput carries the episode fields relevance scoring reads.
type ScoreInput struct {
	// EventTime is when the episode's occurrence happened.
	EventTime time.Time

	// AccessCount is how many times the episode was retrieved.
	AccessCount int64

	// Importance is the caller-assigned weight in [0, 1].
	Importance float64

	// Connections is the episode's connection degree within its agent
	// namespace, outgoing links plus links pointing at it.
	Connections int
}

// Score computes the relevance of an episode at the given instant
// under the given policy. It is pure: identical inputs always produce
// the same output, regardless of engine state. Each factor is
// normalized to [0, 1] before weighting and the weighted sum is
// clamped to [0, 1].
func Score(in ScoreInput, now time.Time, pol *policy.Policy) float64 {
	// Recency decays exponentially with age. Future event times score
	// as age zero rather than above one.
	ageDays := now.Sub(in.EventTime).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Exp(-ageDays / pol.HalfLifeDays)

	// Frequency grows logarithmically and saturates at the cap.
	frequency := 0.0
	if in.AccessCount > 0 {
		frequency = math.Log(1+float64(in.AccessCount)) / math.Log(1+pol.FrequencyCap)
		if frequency > 1 {
			frequency = 1
		}
	}

	// Connectivity is linear up to the cap.
	connectivity := float64(in.Connections) / pol.ConnectivityCap
	if connectivity > 1 {
		connectivity = 1
	}

	score := pol.Weights.Recency*recency +
		pol.Weights.Frequency*frequency +
		pol.Weights.Importance*in.Importance +
		pol.Weights.Connectivity*connectivity

	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
