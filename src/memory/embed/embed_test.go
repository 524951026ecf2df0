package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestDummyEmbeddingSharesWords(t *testing.T) {
	a := DummyEmbedding("swap ETH to USDC on Uniswap", DefaultDimensions)
	b := DummyEmbedding("Uniswap swap of ETH", DefaultDimensions)
	c := DummyEmbedding("lending rates on Aave", DefaultDimensions)
	if len(a) != DefaultDimensions {
		t.Fatalf("expected %d dims, got %d", DefaultDimensions, len(a))
	}
	if cosine(a, b) <= cosine(a, c) {
		t.Fatalf("texts sharing words should be closer: ab=%v ac=%v", cosine(a, b), cosine(a, c))
	}
	again := DummyEmbedding("swap ETH to USDC on Uniswap", DefaultDimensions)
	for i := range a {
		if a[i] != again[i] {
			t.Fatal("dummy embedding must be deterministic")
		}
	}
	if blank := DummyEmbedding("   ", 8); blank[0] != 1 {
		t.Fatalf("token-less text should yield a non-zero vector: %v", blank)
	}
}

func TestDummyEmbedderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (DummyEmbedder{}).Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "dummy-key")
	e, err := New(context.Background(), Config{Provider: "openai", Model: "test-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Fatalf("expected *OpenAIEmbedder, got %T", e)
	}
	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewAppliesDecorators(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: "dummy", CacheEntries: 16, RequestsPerSecond: 100, Burst: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	limited, ok := e.(*RateLimitedEmbedder)
	if !ok {
		t.Fatalf("expected rate limiter outermost, got %T", e)
	}
	if _, ok := limited.inner.(*CachedEmbedder); !ok {
		t.Fatalf("expected cache inside limiter, got %T", limited.inner)
	}
}

func TestAutoEmbedderFallback(t *testing.T) {
	t.Setenv("AGENT_EMBED_PROVIDER", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected fallback to DummyEmbedder")
	}
	t.Setenv("AGENT_EMBED_PROVIDER", "google")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected fallback when provider cannot be built")
	}
}

func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 32)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}
	defer cached.Close()

	first, err := cached.Embed(context.Background(), "aave deposit")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	cached.Wait()
	first[0] = -1
	second, err := cached.Embed(context.Background(), "aave deposit")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if second[0] == -1 {
		t.Fatal("cached vector must not alias caller slices")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("expected a single provider call, got %d", got)
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("provider down")}
	cached, err := NewCachedEmbedder(inner, 8)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}
	defer cached.Close()
	for i := 0; i < 2; i++ {
		if _, err := cached.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected provider error")
		}
		cached.Wait()
	}
	if got := inner.calls.Load(); got != 2 {
		t.Fatalf("errors must not be cached, got %d calls", got)
	}
}

func TestRateLimitedEmbedderCancels(t *testing.T) {
	inner := &countingEmbedder{}
	limited := NewRateLimitedEmbedder(inner, 0.001, 1)
	if _, err := limited.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Embed(ctx, "second"); err == nil {
		t.Fatal("expected wait to fail under a short deadline")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("throttled call must not reach provider, got %d calls", got)
	}
}

func TestVoyageEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "voyage-3.5" {
			t.Errorf("unexpected model: %v", body["model"])
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`))
	}))
	defer srv.Close()

	t.Setenv("VOYAGE_API_KEY", "secret")
	t.Setenv("VOYAGE_API_BASE", srv.URL)
	e, err := NewVoyageEmbedder("")
	if err != nil {
		t.Fatalf("NewVoyageEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestVoyageEmbedderRequiresKey(t *testing.T) {
	t.Setenv("VOYAGE_API_KEY", "")
	if _, err := NewVoyageEmbedder(""); err == nil {
		t.Fatal("expected error without VOYAGE_API_KEY")
	}
}
