package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

func TestInMemoryStoreQueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(s.Upsert(ctx, "b", []float32{1, 0}, "exact", map[string]any{"kind": "reflection"}))
	must(s.Upsert(ctx, "a", []float32{1, 0}, "exact twin", nil))
	must(s.Upsert(ctx, "c", []float32{0, 1}, "orthogonal", nil))
	must(s.Upsert(ctx, "d", []float32{1, 1}, "diagonal", nil))

	res, err := s.Query(ctx, []float32{1, 0}, 3)
	must(err)
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].ID != "a" || res[1].ID != "b" || res[2].ID != "d" {
		t.Fatalf("unexpected order: %s %s %s", res[0].ID, res[1].ID, res[2].ID)
	}
	if res[1].Metadata["kind"] != "reflection" {
		t.Fatalf("metadata lost: %v", res[1].Metadata)
	}
}

func TestInMemoryStoreEdgeCases(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if res, err := s.Query(ctx, []float32{1}, 5); err != nil || len(res) != 0 {
		t.Fatalf("empty store should return nothing: %v %v", res, err)
	}
	if err := s.Upsert(ctx, "x", nil, "doc", nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
	if err := s.Upsert(ctx, "x", []float32{1, 2}, "doc", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "y", []float32{1, 2, 3}, "doc", nil); err != ErrDimensionMismatch {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if res, _ := s.Query(ctx, []float32{1, 2}, 0); len(res) != 0 {
		t.Fatal("k=0 must return nothing")
	}
	// Upsert replaces.
	if err := s.Upsert(ctx, "x", []float32{2, 1}, "doc v2", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("expected 1 document, got %d", n)
	}
	if got, ok := s.Get("x"); !ok || got.Document != "doc v2" {
		t.Fatalf("upsert did not replace: %+v", got)
	}
}

func TestInMemoryGraphIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewInMemoryGraph()
	user := model.NewNode(model.NodeUser, "alice", nil)
	proto := model.NewNode(model.NodeProtocol, "Uniswap", nil)
	m := model.Mutation{
		RecordID: "r1",
		Nodes:    []model.NodeOp{user, proto},
		Edges:    []model.EdgeOp{{Type: model.EdgePrefers, From: user.Ref(), To: proto.Ref()}},
	}
	for i := 0; i < 3; i++ {
		if err := g.Run(ctx, m); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	nodes, edges := g.Size()
	if nodes != 2 || edges != 1 {
		t.Fatalf("replay changed the graph: %d nodes %d edges", nodes, edges)
	}
	if got := g.Edges(model.EdgePrefers); len(got) != 1 || got[0].To.KeyValue != "Uniswap" {
		t.Fatalf("unexpected edges: %v", got)
	}

	bad := model.Mutation{Edges: []model.EdgeOp{{Type: model.EdgePrefers, From: user.Ref(), To: proto.Ref()}}}
	if err := g.Run(ctx, bad); err == nil {
		t.Fatal("expected error for dangling edge")
	}
	if nodes, _ := g.Size(); nodes != 2 {
		t.Fatal("invalid mutation must not be applied")
	}
}

func TestInMemoryGraphNodeReturnsCopy(t *testing.T) {
	ctx := context.Background()
	g := NewInMemoryGraph()
	tx := model.NewNode(model.NodeTransaction, "r1", map[string]any{"id": "0xabc"})
	if err := g.Run(ctx, model.Mutation{RecordID: "r1", Nodes: []model.NodeOp{tx}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	n, ok := g.Node(tx.Ref())
	if !ok {
		t.Fatal("node not stored")
	}
	n.Props["id"] = "tampered"
	if again, _ := g.Node(tx.Ref()); again.Props["id"] != "0xabc" {
		t.Fatalf("caller mutated stored props: %v", again.Props)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			op := model.NewNode(model.NodeTransaction, "r1", map[string]any{fmt.Sprintf("k%d", i): i})
			if err := g.Run(ctx, model.Mutation{RecordID: "r1", Nodes: []model.NodeOp{op}}); err != nil {
				t.Errorf("Run: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if n, ok := g.Node(tx.Ref()); ok {
				for range n.Props {
				}
			}
		}
	}()
	wg.Wait()
	if n, _ := g.Node(tx.Ref()); len(n.Props) != 202 {
		t.Fatalf("expected 202 props after merges, got %d", len(n.Props))
	}
}
