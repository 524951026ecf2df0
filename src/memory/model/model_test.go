package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestMemoryRecordValidate(t *testing.T) {
	base := MemoryRecord{Content: "swapped ETH", Kind: KindTransactionRecord, Importance: 0.5}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	cases := map[string]MemoryRecord{
		"blank content":   {Content: "   ", Kind: KindReflection, Importance: 0.5},
		"importance high": {Content: "x", Kind: KindReflection, Importance: 1.01},
		"importance low":  {Content: "x", Kind: KindReflection, Importance: -0.1},
		"importance nan":  {Content: "x", Kind: KindReflection, Importance: math.NaN()},
		"unknown kind":    {Content: "x", Kind: "gossip", Importance: 0.5},
	}
	for name, rec := range cases {
		if err := rec.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	for _, edge := range []float64{0, 1} {
		rec := base
		rec.Importance = edge
		if err := rec.Validate(); err != nil {
			t.Fatalf("importance %v should be accepted: %v", edge, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("  Strategy_Outcome ")
	if err != nil || k != KindStrategyOutcome {
		t.Fatalf("unexpected parse result: %q %v", k, err)
	}
	if _, err := ParseKind("rumour"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFlattenMetadataRoundTrip(t *testing.T) {
	created := time.Date(2025, time.March, 4, 5, 6, 7, 8, time.UTC)
	rec := MemoryRecord{
		ID:         "m-1",
		Content:    "swap 1 ETH to USDC on Uniswap",
		Kind:       KindTransactionRecord,
		CreatedAt:  created,
		Importance: 0.7,
		Attributes: map[string]any{
			"protocol": "Uniswap",
			"amount":   1.5,
			"route":    []any{"ETH", "USDC"},
		},
	}
	meta := FlattenMetadata(rec)
	for _, v := range meta {
		switch v.(type) {
		case string, float64:
		default:
			t.Fatalf("metadata value %v (%T) is not scalar", v, v)
		}
	}

	got := RecordFromMetadata(rec.ID, rec.Content, meta)
	if got.Kind != rec.Kind || got.Importance != rec.Importance || !got.CreatedAt.Equal(created) {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.Attr("protocol") != "Uniswap" {
		t.Fatalf("protocol attribute lost: %+v", got.Attributes)
	}
	route, ok := got.Attributes["route"].([]any)
	if !ok || len(route) != 2 || route[1] != "USDC" {
		t.Fatalf("composite attribute not restored: %#v", got.Attributes["route"])
	}
}

func TestRecordFromMetadataToleratesStringNumbers(t *testing.T) {
	meta := map[string]any{
		MetaKind:       "reflection",
		MetaImportance: json.Number("0.8"),
		MetaCreatedAt:  "2025-01-02T03:04:05Z",
	}
	rec := RecordFromMetadata("id", "doc", meta)
	if math.Abs(rec.Importance-0.8) > 1e-9 {
		t.Fatalf("unexpected importance: %v", rec.Importance)
	}
	meta[MetaImportance] = "7"
	if rec := RecordFromMetadata("id", "doc", meta); rec.Importance != 1 {
		t.Fatalf("importance should clamp to 1, got %v", rec.Importance)
	}
	if str := StringMetadata(map[string]any{"n": 0.25}); str["n"] != "0.25" {
		t.Fatalf("unexpected string metadata: %v", str)
	}
}

func TestSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 0}); got != 0 {
		t.Fatalf("zero vector: %v", got)
	}
	if got := NormalizeSimilarity(-0.4); got != 0 {
		t.Fatalf("negative similarity should clamp to 0, got %v", got)
	}
	if got := NormalizeSimilarity(0.6); got != 0.6 {
		t.Fatalf("unexpected normalized similarity: %v", got)
	}
}

func TestMutationValidate(t *testing.T) {
	user := NodeOp{Label: NodeUser, Key: "id", KeyValue: "alice"}
	proto := NodeOp{Label: NodeProtocol, Key: "name", KeyValue: "Aave"}
	m := Mutation{
		RecordID: "r1",
		Nodes:    []NodeOp{user, proto},
		Edges:    []EdgeOp{{Type: EdgePrefers, From: user.Ref(), To: proto.Ref()}},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("expected valid mutation: %v", err)
	}
	if _, err := m.Node(proto.Ref()); err != nil {
		t.Fatalf("node lookup failed: %v", err)
	}

	dangling := m
	dangling.Edges = []EdgeOp{{Type: EdgePrefers, From: user.Ref(), To: NodeRef{Label: NodeToken, KeyValue: "DAI"}}}
	if err := dangling.Validate(); err == nil {
		t.Fatal("expected error for undeclared edge target")
	}

	badEdge := m
	badEdge.Edges = []EdgeOp{{Type: "OWNS", From: user.Ref(), To: proto.Ref()}}
	if err := badEdge.Validate(); err == nil {
		t.Fatal("expected error for unsupported edge type")
	}

	if !(Mutation{}).Empty() {
		t.Fatal("zero mutation should be empty")
	}
}
