package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/memory/embed"
	"github.com/Protocol-Lattice/defi-agent/src/memory/engine"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/store"
	"github.com/Protocol-Lattice/defi-agent/src/models"
	"github.com/Protocol-Lattice/defi-agent/src/recorder"
	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type promptCapture struct {
	prompts []string
	reply   string
}

func (p *promptCapture) Generate(_ context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	return p.reply, nil
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.NewEngine(store.NewInMemoryStore(), store.NewInMemoryGraph(), embed.DummyEmbedder{}, engine.Options{
		Clock:  func() time.Time { return testNow },
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func swapTool(calls *int) tools.Tool {
	return tools.Func{
		ToolSpec: tools.ToolSpec{
			Name:        "swap",
			Description: "Swap tokens on a DEX",
			InputSchema: map[string]any{"type": "object"},
		},
		Fn: func(_ context.Context, req tools.ToolRequest) (tools.ToolResponse, error) {
			*calls++
			if req.Arguments["fromToken"] == "SCAM" {
				return tools.ToolResponse{}, errors.New("token blacklisted")
			}
			return tools.ToolResponse{Content: "swapped", Metadata: map[string]string{"transactionId": "0xabc"}}, nil
		},
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	eng := newEngine(t)
	if _, err := New(Options{Model: models.NewDummyLLM("")}); err == nil {
		t.Fatal("expected error without memory")
	}
	if _, err := New(Options{Memory: eng}); err == nil {
		t.Fatal("expected error without model")
	}
	var calls int
	if _, err := New(Options{Memory: eng, Model: models.NewDummyLLM(""), Tools: []tools.Tool{swapTool(&calls), swapTool(&calls)}}); err == nil {
		t.Fatal("expected duplicate tool error")
	}
}

func TestDecideUsesMemoryAwarePrompt(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	if _, err := eng.Create(ctx, "Swap WETH to USDC on AMM failed: slippage exceeded", model.KindReflection, 0.8, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	llm := &promptCapture{reply: "use a 1% slippage limit"}
	var calls int
	a, err := New(Options{Memory: eng, Model: llm, Tools: []tools.Tool{swapTool(&calls)}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := a.Decide(ctx, "should I swap WETH to USDC on AMM now?")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != llm.reply {
		t.Fatalf("unexpected decision %q", got)
	}
	p := llm.prompts[0]
	for _, want := range []string{defaultSystemPrompt, "- swap: Swap tokens on a DEX", "Current request:", "Past Experiences:", "[reflection] Swap WETH to USDC on AMM failed"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if n := eng.Metrics().Created; n != 1 {
		t.Fatalf("decisions must not be recorded, created=%d", n)
	}
}

func TestDecideSkipsMemoryForArithmetic(t *testing.T) {
	eng := newEngine(t)
	if _, err := eng.Create(context.Background(), "2 plus 2 was discussed", model.KindReflection, 0.5, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	llm := &promptCapture{reply: "4"}
	a, _ := New(Options{Memory: eng, Model: llm})
	if _, err := a.Decide(context.Background(), "2 + 2"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if strings.Contains(llm.prompts[0], "Past Experiences") {
		t.Fatalf("arithmetic prompt should carry no memory:\n%s", llm.prompts[0])
	}
	if _, err := a.Decide(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestInvokeRecordsThroughRecorder(t *testing.T) {
	eng := newEngine(t)
	rec := recorder.New(eng, recorder.WithLogger(log.New(io.Discard, "", 0)))
	var calls int
	a, err := New(Options{Memory: eng, Model: models.NewDummyLLM(""), Recorder: rec, Tools: []tools.Tool{swapTool(&calls)}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	resp, err := a.Invoke(ctx, "SWAP", map[string]any{"fromToken": "WETH", "toToken": "USDC"})
	if err != nil || resp.Content != "swapped" {
		t.Fatalf("Invoke: %+v %v", resp, err)
	}
	if _, err := a.Invoke(ctx, "swap", map[string]any{"fromToken": "SCAM"}); err == nil {
		t.Fatal("tool error must reach the caller")
	}
	if _, err := a.Invoke(ctx, "bridge", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 tool calls, got %d", calls)
	}

	mems, err := a.ScoredMemories(ctx, "swap blacklisted token", 5)
	if err != nil {
		t.Fatalf("ScoredMemories: %v", err)
	}
	if len(mems) != 2 {
		t.Fatalf("expected both executions recorded, got %d", len(mems))
	}
	var reflection *model.ScoredMemory
	for i := range mems {
		if mems[i].Record.Kind == model.KindReflection {
			reflection = &mems[i]
		}
	}
	if reflection == nil || reflection.Record.Importance < 0.8 {
		t.Fatalf("failed swap should be a high-importance reflection: %+v", mems)
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestActInvokesRequestedTool(t *testing.T) {
	eng := newEngine(t)
	llm := &promptCapture{reply: `tool:swap {"fromToken":"WETH","toToken":"USDC"}`}
	var calls int
	a, _ := New(Options{Memory: eng, Model: llm, Tools: []tools.Tool{swapTool(&calls)}})
	out, err := a.Act(context.Background(), "swap my WETH into USDC")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if out != "swapped" || calls != 1 {
		t.Fatalf("expected tool output, got %q (calls=%d)", out, calls)
	}

	llm.reply = "hold for now"
	out, err = a.Act(context.Background(), "what about ETH?")
	if err != nil || out != "hold for now" {
		t.Fatalf("plain replies pass through: %q %v", out, err)
	}
}

func TestRelevanceScoreAndRetrieval(t *testing.T) {
	eng := newEngine(t)
	a, _ := New(Options{Memory: eng, Model: models.NewDummyLLM("")})
	fresh := model.MemoryRecord{CreatedAt: testNow, Importance: 1}
	if got := a.RelevanceScore(fresh, 1); math.Abs(got-1) > 1e-9 {
		t.Fatalf("perfect match should score 1, got %v", got)
	}
	old := model.MemoryRecord{CreatedAt: testNow.Add(-7 * 24 * time.Hour), Importance: 0}
	if got := a.RelevanceScore(old, -0.5); math.Abs(got-0.15) > 1e-9 {
		t.Fatalf("expected 0.3*0.5 = 0.15, got %v", got)
	}

	ctx := context.Background()
	if _, err := eng.Create(ctx, "Prefers Aave for stablecoin lending", model.KindUserPreference, 0.6, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	recs, err := a.RelevantMemories(ctx, "Aave lending", 3)
	if err != nil || len(recs) != 1 {
		t.Fatalf("RelevantMemories: %v %v", recs, err)
	}
	out, err := a.MemoryAwarePrompt(ctx, "base", "Aave lending", 200)
	if err != nil || !strings.Contains(out, "[user_preference] Prefers Aave") {
		t.Fatalf("MemoryAwarePrompt: %q %v", out, err)
	}
}

func TestClassifyQuery(t *testing.T) {
	cases := map[string]QueryType{
		"2 + 2":      QueryArithmetic,
		"1.5 * 3":    QueryArithmetic,
		"gas price?": QueryShortFactoid,
		"":           QueryComplex,
		"compare the yields of Aave and Compound for USDC over the last month": QueryComplex,
	}
	for in, want := range cases {
		if got := classifyQuery(in); got != want {
			t.Fatalf("classifyQuery(%q) = %v, want %v", in, got, want)
		}
	}
	if memoryBudget(QueryShortFactoid, 100) != 50 || memoryBudget(QueryArithmetic, 100) != 0 {
		t.Fatal("unexpected memory budgets")
	}
}

func TestParseToolCall(t *testing.T) {
	name, args, ok := parseToolCall("  TOOL: bridge to arbitrum ")
	if !ok || name != "bridge" || args["input"] != "to arbitrum" {
		t.Fatalf("unexpected parse: %q %v %v", name, args, ok)
	}
	if _, _, ok := parseToolCall("tool:"); ok {
		t.Fatal("empty tool call should not parse")
	}
	if _, _, ok := parseToolCall("nothing to do"); ok {
		t.Fatal("plain text is not a tool call")
	}
}
