package models

import (
	"context"
	"errors"
	"testing"
)

func TestNewDummyLLMDefaultPrefix(t *testing.T) {
	llm := NewDummyLLM("")
	got, err := llm.Generate(context.Background(), "line1\nline2")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "Dummy response: line2" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestNewDummyLLMUsesLastNonEmptyLine(t *testing.T) {
	llm := NewDummyLLM("Prefix:")
	got, err := llm.Generate(context.Background(), "first\n\nsecond\n  \nthird")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "Prefix: third" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestDummyLLMHandlesEmptyPrompt(t *testing.T) {
	got, err := NewDummyLLM("Prefix").Generate(context.Background(), "\n\n\n")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "Prefix <empty prompt>" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestDummyLLMHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDummyLLM("").Generate(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewLLMProvider(t *testing.T) {
	if _, err := NewLLMProvider(context.Background(), "unknown", "model", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	llm, err := NewLLMProvider(context.Background(), " Offline ", "", "")
	if err != nil {
		t.Fatalf("offline provider: %v", err)
	}
	if _, ok := llm.(*DummyLLM); !ok {
		t.Fatalf("expected DummyLLM, got %T", llm)
	}
}

type countingLLM struct {
	calls int
	err   error
}

func (c *countingLLM) Generate(_ context.Context, prompt string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "echo " + prompt, nil
}

func TestCachedLLM(t *testing.T) {
	inner := &countingLLM{}
	c, err := NewCachedLLM(inner, 16, 0)
	if err != nil {
		t.Fatalf("NewCachedLLM: %v", err)
	}
	defer c.Close()

	first, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c.Wait()
	second, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first != second || inner.calls != 1 {
		t.Fatalf("expected cached response, calls=%d %q %q", inner.calls, first, second)
	}

	inner.err = errors.New("rate limited")
	if _, err := c.Generate(context.Background(), "other"); err == nil {
		t.Fatal("expected error from inner model")
	}
	inner.err = nil
	c.Wait()
	if _, err := c.Generate(context.Background(), "other"); err != nil {
		t.Fatalf("errors must not be cached: %v", err)
	}
}
