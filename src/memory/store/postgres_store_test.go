package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	lit := vectorLiteral([]float32{1, 0.5, -2})
	if lit != "[1,0.5,-2]" {
		t.Fatalf("unexpected literal: %q", lit)
	}
	vec, err := parseVector(lit)
	if err != nil {
		t.Fatalf("parseVector: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 || vec[2] != -2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestDecodeMetadataKeepsNumbers(t *testing.T) {
	meta := decodeMetadata(`{"kind":"reflection","importance":0.8}`)
	if _, ok := meta["importance"].(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", meta["importance"])
	}
	rec := model.RecordFromMetadata("id", "doc", meta)
	if rec.Importance != 0.8 || rec.Kind != model.KindReflection {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if got := decodeMetadata("not json"); len(got) != 0 {
		t.Fatalf("expected empty metadata for invalid json, got %v", got)
	}
}

func TestPostgresSchemaDimensions(t *testing.T) {
	if s := postgresSchema(384); !strings.Contains(s, "embedding vector(384)") {
		t.Fatalf("schema does not size the embedding column:\n%s", s)
	}
	if s := postgresSchema(0); !strings.Contains(s, "embedding vector NOT NULL") {
		t.Fatalf("schema should fall back to an unsized column:\n%s", s)
	}
}

func TestGraphStatements(t *testing.T) {
	user := model.NewNode(model.NodeUser, "alice", nil)
	tx := model.NewNode(model.NodeTransaction, "r1", map[string]any{"id": "0xabc"})
	tx.Create = true
	m := model.Mutation{
		RecordID: "r1",
		Nodes:    []model.NodeOp{user, tx},
		Edges:    []model.EdgeOp{{Type: model.EdgeExecuted, From: user.Ref(), To: tx.Ref()}},
	}
	stmts, err := graphStatements(m)
	if err != nil {
		t.Fatalf("graphStatements: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0].sql, "ON CONFLICT (label, key_value)") {
		t.Fatalf("node statement must merge: %s", stmts[0].sql)
	}
	props := stmts[1].args[3].(string)
	if !strings.Contains(props, `"recordId":"r1"`) || !strings.Contains(props, `"id":"0xabc"`) {
		t.Fatalf("unexpected props payload: %s", props)
	}
	edgeArgs := stmts[2].args
	if edgeArgs[0] != "EXECUTED" || edgeArgs[2] != "alice" || edgeArgs[4] != "r1" {
		t.Fatalf("unexpected edge args: %v", edgeArgs)
	}
}
