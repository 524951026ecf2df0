// Package models adapts language-model providers to the agent's decision point.
package models

import "context"

// LLM turns a prompt into a completion.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func withPrefix(prefix, prompt string) string {
	if prefix == "" {
		return prompt
	}
	return prefix + "\n\n" + prompt
}
