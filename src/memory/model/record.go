package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind classifies what a memory describes. The set is closed; new kinds are added here.
type Kind string

const (
	KindUserPreference    Kind = "user_preference"
	KindStrategyOutcome   Kind = "strategy_outcome"
	KindTransactionRecord Kind = "transaction_record"
	KindMarketObservation Kind = "market_observation"
	KindReflection        Kind = "reflection"
)

var validKinds = map[Kind]struct{}{
	KindUserPreference:    {},
	KindStrategyOutcome:   {},
	KindTransactionRecord: {},
	KindMarketObservation: {},
	KindReflection:        {},
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := validKinds[k]
	return ok
}

// ParseKind converts free text into a Kind, accepting mixed case and surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown memory kind %q", s)
	}
	return k, nil
}

// MemoryRecord is a persisted, immutable unit of agent experience.
type MemoryRecord struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Kind       Kind           `json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
	Importance float64        `json:"importance"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Validate checks the invariants every stored record must satisfy.
func (r MemoryRecord) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content is empty")
	}
	if !ValidImportance(r.Importance) {
		return fmt.Errorf("importance %v outside [0,1]", r.Importance)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown memory kind %q", r.Kind)
	}
	return nil
}

// Attr returns the first non-empty string attribute among keys.
func (r MemoryRecord) Attr(keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Attributes[key]; ok {
			if s := strings.TrimSpace(StringFromAny(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// ScoredMemory pairs a record with its query-scoped relevance. It is never persisted.
type ScoredMemory struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
	Score      float64      `json:"score"`
}

// ValidImportance reports whether v lies in [0,1].
func ValidImportance(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// CloneAttributes returns a shallow copy so callers cannot mutate a stored record.
func CloneAttributes(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return map[string]any{}
	}
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}
