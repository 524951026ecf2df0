package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChromemStoreClampsK(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("", "")
	require.NoError(t, err)

	res, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, res)

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, "swap WETH", map[string]any{"importance": 0.8, "kind": "transaction_record"}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0, 1}, "lend DAI", nil))

	res, err = s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "a", res[0].ID)
	require.Equal(t, "swap WETH", res[0].Document)
	require.Equal(t, "0.8", res[0].Metadata["importance"])
	require.InDelta(t, 1.0, res[0].Similarity, 1e-5)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
