package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// GraphNode is a node held by InMemoryGraph.
type GraphNode struct {
	Label model.NodeLabel
	Key   string
	Props map[string]any
}

// GraphEdge is a relationship held by InMemoryGraph.
type GraphEdge struct {
	Type model.EdgeType
	From model.NodeRef
	To   model.NodeRef
}

func (e GraphEdge) String() string {
	return fmt.Sprintf("(%s)-[:%s]->(%s)", e.From, e.Type, e.To)
}

// InMemoryGraph is a GraphStore backed by maps.
type InMemoryGraph struct {
	mu    sync.RWMutex
	nodes map[model.NodeRef]GraphNode
	edges map[GraphEdge]struct{}
}

func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{
		nodes: make(map[model.NodeRef]GraphNode),
		edges: make(map[GraphEdge]struct{}),
	}
}

// Run applies m atomically: either every op lands or none does.
func (g *InMemoryGraph) Run(ctx context.Context, m model.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, op := range m.Nodes {
		ref := op.Ref()
		node, ok := g.nodes[ref]
		if !ok {
			node = GraphNode{Label: op.Label, Key: op.Key, Props: map[string]any{op.Key: op.KeyValue}}
		}
		for k, v := range op.Props {
			node.Props[k] = v
		}
		g.nodes[ref] = node
	}
	for _, e := range m.Edges {
		g.edges[GraphEdge{Type: e.Type, From: e.From, To: e.To}] = struct{}{}
	}
	return nil
}

// Nodes returns the nodes carrying label, ordered by key value.
func (g *InMemoryGraph) Nodes(label model.NodeLabel) []model.NodeRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []model.NodeRef
	for ref := range g.nodes {
		if ref.Label == label {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyValue < out[j].KeyValue })
	return out
}

// Node returns a copy of the stored node at ref.
func (g *InMemoryGraph) Node(ref model.NodeRef) (GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[ref]
	if ok {
		n.Props = model.CloneAttributes(n.Props)
	}
	return n, ok
}

// Edges returns relationships of type t; an empty t returns all of them.
func (g *InMemoryGraph) Edges(t model.EdgeType) []GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []GraphEdge
	for e := range g.edges {
		if t == "" || e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Size reports node and edge counts.
func (g *InMemoryGraph) Size() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}
