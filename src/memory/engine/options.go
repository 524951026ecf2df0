package engine

import (
	"errors"
	"log"
	"math"
	"time"
)

// DefaultHalfLife is the age at which a memory's temporal weight drops to one half.
const DefaultHalfLife = 7 * 24 * time.Hour

// ScoreWeights controls the contribution of each scoring component during retrieval.
type ScoreWeights struct {
	Semantic   float64 `yaml:"semantic"`
	Temporal   float64 `yaml:"temporal"`
	Importance float64 `yaml:"importance"`
}

// DefaultWeights favours semantic similarity, then recency, then importance.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{Semantic: 0.5, Temporal: 0.3, Importance: 0.2}
}

// Normalized rescales the weights so they sum to 1. All-zero weights are returned unchanged.
func (w ScoreWeights) Normalized() ScoreWeights {
	total := w.Semantic + w.Temporal + w.Importance
	if total == 0 {
		return w
	}
	return ScoreWeights{
		Semantic:   w.Semantic / total,
		Temporal:   w.Temporal / total,
		Importance: w.Importance / total,
	}
}

func (w ScoreWeights) isZero() bool {
	return w.Semantic == 0 && w.Temporal == 0 && w.Importance == 0
}

// Options configures the memory engine. Zero values fall back to the defaults.
type Options struct {
	Weights  ScoreWeights
	HalfLife time.Duration
	// EmbedTimeout, StoreTimeout and GraphTimeout bound each collaborator call.
	EmbedTimeout time.Duration
	StoreTimeout time.Duration
	GraphTimeout time.Duration
	// CandidateMultiplier widens the vector query of RetrieveScored before re-ranking.
	CandidateMultiplier int
	Clock               func() time.Time
	IDs                 IDGenerator
	Logger              *log.Logger
}

// DefaultOptions returns the recommended defaults for the memory engine.
func DefaultOptions() Options {
	return Options{
		Weights:             DefaultWeights(),
		HalfLife:            DefaultHalfLife,
		EmbedTimeout:        15 * time.Second,
		StoreTimeout:        10 * time.Second,
		GraphTimeout:        10 * time.Second,
		CandidateMultiplier: 1,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.Weights.isZero() {
		o.Weights = defaults.Weights
	}
	if o.HalfLife == 0 {
		o.HalfLife = defaults.HalfLife
	}
	if o.EmbedTimeout == 0 {
		o.EmbedTimeout = defaults.EmbedTimeout
	}
	if o.StoreTimeout == 0 {
		o.StoreTimeout = defaults.StoreTimeout
	}
	if o.GraphTimeout == 0 {
		o.GraphTimeout = defaults.GraphTimeout
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = defaults.CandidateMultiplier
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IDs == nil {
		o.IDs = UUIDs{}
	}
	return o
}

// Validate rejects configurations the scoring function cannot honour.
func (o Options) Validate() error {
	w := o.Weights
	for _, v := range []float64{w.Semantic, w.Temporal, w.Importance} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("score weights must be finite and non-negative")
		}
	}
	if o.HalfLife < 0 {
		return errors.New("half-life must be positive")
	}
	if o.EmbedTimeout < 0 || o.StoreTimeout < 0 || o.GraphTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
