package model

import (
	"errors"
	"fmt"
)

// NodeLabel enumerates the node types of the knowledge-graph projection.
type NodeLabel string

const (
	NodeUser        NodeLabel = "User"
	NodeProtocol    NodeLabel = "Protocol"
	NodeToken       NodeLabel = "Token"
	NodeTransaction NodeLabel = "Transaction"
	NodeStrategy    NodeLabel = "Strategy"
)

// EdgeType enumerates supported relationships between projected nodes.
type EdgeType string

const (
	EdgeExecuted       EdgeType = "EXECUTED"
	EdgeOnProtocol     EdgeType = "ON_PROTOCOL"
	EdgeSwappedFrom    EdgeType = "SWAPPED_FROM"
	EdgeSwappedTo      EdgeType = "SWAPPED_TO"
	EdgePrefers        EdgeType = "PREFERS"
	EdgeLearned        EdgeType = "LEARNED"
	EdgeInteractedWith EdgeType = "INTERACTED_WITH"
)

var validLabels = map[NodeLabel]struct{}{
	NodeUser:        {},
	NodeProtocol:    {},
	NodeToken:       {},
	NodeTransaction: {},
	NodeStrategy:    {},
}

var validEdgeTypes = map[EdgeType]struct{}{
	EdgeExecuted:       {},
	EdgeOnProtocol:     {},
	EdgeSwappedFrom:    {},
	EdgeSwappedTo:      {},
	EdgePrefers:        {},
	EdgeLearned:        {},
	EdgeInteractedWith: {},
}

var labelKeys = map[NodeLabel]string{
	NodeUser:        "id",
	NodeProtocol:    "name",
	NodeToken:       "symbol",
	NodeTransaction: "recordId",
	NodeStrategy:    "name",
}

// Valid reports whether t is a supported relationship type.
func (t EdgeType) Valid() bool {
	_, ok := validEdgeTypes[t]
	return ok
}

// Key is the property that identifies nodes of this label.
func (l NodeLabel) Key() string { return labelKeys[l] }

// NewNode builds a NodeOp keyed by the label's identifying property.
func NewNode(label NodeLabel, keyValue string, props map[string]any) NodeOp {
	return NodeOp{Label: label, Key: label.Key(), KeyValue: keyValue, Props: props}
}

// NodeRef identifies a node by label and key value.
type NodeRef struct {
	Label    NodeLabel `json:"label"`
	KeyValue string    `json:"key_value"`
}

func (r NodeRef) String() string { return string(r.Label) + ":" + r.KeyValue }

// NodeOp merges (or, with Create, creates) a node. Key names the identifying property.
// Create nodes are still keyed, so re-running the same mutation never duplicates them.
type NodeOp struct {
	Label    NodeLabel      `json:"label"`
	Key      string         `json:"key"`
	KeyValue string         `json:"key_value"`
	Props    map[string]any `json:"props,omitempty"`
	Create   bool           `json:"create,omitempty"`
}

// Ref returns the reference used by edges pointing at this node.
func (n NodeOp) Ref() NodeRef { return NodeRef{Label: n.Label, KeyValue: n.KeyValue} }

// EdgeOp merges a typed, directed relationship between two nodes of the same mutation.
type EdgeOp struct {
	Type EdgeType `json:"type"`
	From NodeRef  `json:"from"`
	To   NodeRef  `json:"to"`
}

// Mutation is the graph change implied by one memory record.
type Mutation struct {
	RecordID string   `json:"record_id"`
	Nodes    []NodeOp `json:"nodes"`
	Edges    []EdgeOp `json:"edges"`
}

// Empty reports whether the mutation changes nothing.
func (m Mutation) Empty() bool { return len(m.Nodes) == 0 && len(m.Edges) == 0 }

// Validate ensures labels and edge types are known and every edge endpoint is declared.
func (m Mutation) Validate() error {
	declared := make(map[NodeRef]struct{}, len(m.Nodes))
	for _, n := range m.Nodes {
		if _, ok := validLabels[n.Label]; !ok {
			return fmt.Errorf("unsupported node label %q", n.Label)
		}
		if n.Key == "" || n.KeyValue == "" {
			return fmt.Errorf("node %s has no key", n.Label)
		}
		declared[n.Ref()] = struct{}{}
	}
	for _, e := range m.Edges {
		if !e.Type.Valid() {
			return fmt.Errorf("unsupported edge type %q", e.Type)
		}
		if _, ok := declared[e.From]; !ok {
			return fmt.Errorf("edge %s: undeclared source %s", e.Type, e.From)
		}
		if _, ok := declared[e.To]; !ok {
			return fmt.Errorf("edge %s: undeclared target %s", e.Type, e.To)
		}
	}
	return nil
}

// Node looks up a declared node by reference.
func (m Mutation) Node(ref NodeRef) (NodeOp, error) {
	for _, n := range m.Nodes {
		if n.Ref() == ref {
			return n, nil
		}
	}
	return NodeOp{}, errors.New("node not declared: " + ref.String())
}
