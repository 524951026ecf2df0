package models

import (
	"context"
	"fmt"
	"strings"
)

// NewLLMProvider returns the named provider's client.
func NewLLMProvider(ctx context.Context, provider string, model string, promptPrefix string) (LLM, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "dummy", "offline":
		return NewDummyLLM(promptPrefix), nil
	case "openai":
		return NewOpenAILLM(model, promptPrefix), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, promptPrefix)
	case "ollama":
		return NewOllamaLLM(model, promptPrefix)
	case "anthropic", "claude":
		return NewAnthropicLLM(model, promptPrefix), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
