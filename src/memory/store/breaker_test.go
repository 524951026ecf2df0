package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

type flakyVectors struct {
	err   error
	calls int
}

func (f *flakyVectors) Upsert(context.Context, string, []float32, string, map[string]any) error {
	f.calls++
	return f.err
}

func (f *flakyVectors) Query(context.Context, []float32, int) ([]QueryResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []QueryResult{{ID: "a", Similarity: 1}}, nil
}

type flakyGraph struct{ err error }

func (f flakyGraph) Run(context.Context, model.Mutation) error { return f.err }

func TestGuardedVectorStoreTrips(t *testing.T) {
	inner := &flakyVectors{err: errors.New("connection refused")}
	g := NewGuardedVectorStore(inner, BreakerConfig{MaxFailures: 2, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := g.Upsert(ctx, "a", []float32{1}, "doc", nil)
		require.EqualError(t, err, "connection refused")
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Query(ctx, []float32{1}, 1)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
}

func TestGuardedVectorStoreIgnoresCancellation(t *testing.T) {
	inner := &flakyVectors{err: context.Canceled}
	g := NewGuardedVectorStore(inner, BreakerConfig{MaxFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := g.Query(context.Background(), []float32{1}, 1)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", g.State())

	inner.err = nil
	res, err := g.Query(context.Background(), []float32{1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestGuardedGraphStore(t *testing.T) {
	g := NewGuardedGraphStore(flakyGraph{err: errors.New("neo4j down")}, BreakerConfig{MaxFailures: 1, Timeout: time.Minute})
	require.Error(t, g.Run(context.Background(), model.Mutation{}))
	require.ErrorIs(t, g.Run(context.Background(), model.Mutation{}), ErrCircuitOpen)
}
