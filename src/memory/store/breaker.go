package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// ErrCircuitOpen is returned while a guarded store is failing fast.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes the store circuit breakers.
type BreakerConfig struct {
	// MaxFailures consecutive failures trip the breaker. Default 5.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing again. Default 30s.
	Timeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open. Default 1.
	HalfOpenRequests uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// A caller giving up is not evidence that the backend is down.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// GuardedVectorStore fails fast once the wrapped VectorStore keeps erroring.
type GuardedVectorStore struct {
	inner VectorStore
	cb    *gobreaker.CircuitBreaker
}

func NewGuardedVectorStore(inner VectorStore, cfg BreakerConfig) *GuardedVectorStore {
	return &GuardedVectorStore{inner: inner, cb: newBreaker("vector-store", cfg)}
}

func (g *GuardedVectorStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, g.inner.Upsert(ctx, id, vector, document, metadata)
	})
	return translateBreakerErr(err)
}

func (g *GuardedVectorStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Query(ctx, vector, k)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	results, _ := out.([]QueryResult)
	return results, nil
}

// Count passes through when the wrapped store supports it.
func (g *GuardedVectorStore) Count(ctx context.Context) (int, error) {
	if c, ok := g.inner.(Counter); ok {
		return c.Count(ctx)
	}
	return 0, errors.New("count not supported")
}

// State reports "closed", "half-open" or "open".
func (g *GuardedVectorStore) State() string { return g.cb.State().String() }

// GuardedGraphStore fails fast once the wrapped GraphStore keeps erroring.
type GuardedGraphStore struct {
	inner GraphStore
	cb    *gobreaker.CircuitBreaker
}

func NewGuardedGraphStore(inner GraphStore, cfg BreakerConfig) *GuardedGraphStore {
	return &GuardedGraphStore{inner: inner, cb: newBreaker("graph-store", cfg)}
}

func (g *GuardedGraphStore) Run(ctx context.Context, m model.Mutation) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, g.inner.Run(ctx, m)
	})
	return translateBreakerErr(err)
}

func (g *GuardedGraphStore) State() string { return g.cb.State().String() }
