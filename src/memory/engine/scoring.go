package engine

import (
	"math"
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// Score combines normalised similarity, temporal weight and importance. Inputs are
// clamped to [0,1] (NaN counts as 0) and so is the result.
func Score(w ScoreWeights, similarity, temporal, importance float64) float64 {
	s := w.Semantic*model.Clamp01(similarity) +
		w.Temporal*model.Clamp01(temporal) +
		w.Importance*model.Clamp01(importance)
	return model.Clamp01(s)
}

// TemporalWeightAt returns 0.5^(age/halfLife). Non-positive ages weigh 1; a non-positive
// half-life falls back to DefaultHalfLife.
func TemporalWeightAt(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return math.Pow(0.5, age.Hours()/halfLife.Hours())
}
