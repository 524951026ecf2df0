package helpers

import (
	"reflect"
	"testing"

	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

func TestParseAttributes(t *testing.T) {
	got := ParseAttributes(" userId=alice, amount=1.5 ,final=true,tx=0x10,broken, =x ")
	want := map[string]any{"userId": "alice", "amount": 1.5, "final": true, "tx": "0x10"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected attributes: %#v", got)
	}
	if ParseAttributes("   ") != nil || ParseAttributes("nope") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestParseCSVList(t *testing.T) {
	got := ParseCSVList(" swap, ,bridge ,")
	if !reflect.DeepEqual(got, []string{"swap", "bridge"}) {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestToolNames(t *testing.T) {
	if ToolNames(nil) != "<none>" {
		t.Fatal("expected placeholder")
	}
	toolset := []tools.Tool{tools.Func{ToolSpec: tools.ToolSpec{Name: "swap"}}, tools.Func{ToolSpec: tools.ToolSpec{Name: "bridge"}}}
	if got := ToolNames(toolset); got != "swap, bridge" {
		t.Fatalf("unexpected names: %q", got)
	}
}
