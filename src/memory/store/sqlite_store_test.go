package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

func TestSQLiteStoreVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	defer s.Close()

	rec := model.MemoryRecord{ID: "m1", Content: "swap on Uniswap", Kind: model.KindTransactionRecord, Importance: 0.7}
	require.NoError(t, s.Upsert(ctx, "m1", []float32{1, 0}, rec.Content, model.FlattenMetadata(rec)))
	require.NoError(t, s.Upsert(ctx, "m2", []float32{0, 1}, "lend on Aave", nil))
	require.NoError(t, s.Upsert(ctx, "m1", []float32{1, 0.1}, rec.Content, model.FlattenMetadata(rec)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	res, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "m1", res[0].ID)
	require.Greater(t, res[0].Similarity, 0.9)

	back := model.RecordFromMetadata(res[0].ID, res[0].Document, res[0].Metadata)
	require.Equal(t, model.KindTransactionRecord, back.Kind)
	require.InDelta(t, 0.7, back.Importance, 1e-9)
}

func TestSQLiteStoreGraphMerges(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	user := model.NewNode(model.NodeUser, "alice", nil)
	proto := model.NewNode(model.NodeProtocol, "Aave", map[string]any{"chain": "ethereum"})
	m := model.Mutation{
		RecordID: "r1",
		Nodes:    []model.NodeOp{user, proto},
		Edges:    []model.EdgeOp{{Type: model.EdgePrefers, From: user.Ref(), To: proto.Ref()}},
	}
	require.NoError(t, s.Run(ctx, m))
	require.NoError(t, s.Run(ctx, m))

	n, err := s.EdgeCount(ctx, model.EdgePrefers)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Error(t, s.Run(ctx, model.Mutation{Nodes: []model.NodeOp{{Label: "Wallet", Key: "id", KeyValue: "w"}}}))
}
