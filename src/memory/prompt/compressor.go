// Package prompt folds retrieved memories into a size-bounded prompt.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

const (
	// DefaultHeading titles the memory block appended to the base prompt.
	DefaultHeading = "Past Experiences"
	// DefaultCandidateLimit is how many scored memories are fetched before packing.
	DefaultCandidateLimit = 50
)

// ScoredRetriever is the slice of the memory engine the compressor needs.
type ScoredRetriever interface {
	RetrieveScored(ctx context.Context, query string, limit int) ([]model.ScoredMemory, error)
}

// SizeFunc measures text in whatever unit the caller budgets (characters, tokens).
type SizeFunc func(string) int

// Characters counts runes.
func Characters(s string) int { return utf8.RuneCountInString(s) }

// ApproxTokens estimates tokens as the larger of the word count and runes/4.
func ApproxTokens(s string) int {
	byChars := (utf8.RuneCountInString(s) + 3) / 4
	if words := len(strings.Fields(s)); words > byChars {
		return words
	}
	return byChars
}

// Compressor appends the highest scoring memories that fit a budget to a prompt.
type Compressor struct {
	Retriever      ScoredRetriever
	Size           SizeFunc
	CandidateLimit int
	Heading        string
}

// NewCompressor returns a character-budgeted compressor over r.
func NewCompressor(r ScoredRetriever) *Compressor {
	return &Compressor{Retriever: r}
}

// Compress returns basePrompt followed by a block of "[kind] content" lines, added in
// descending score order until the next line would push the whole output over maxSize.
// When no line fits the base prompt is returned unchanged.
func (c *Compressor) Compress(ctx context.Context, basePrompt, query string, maxSize int) (string, error) {
	if c == nil || c.Retriever == nil {
		return "", errors.New("compressor has no retriever")
	}
	if maxSize <= 0 {
		return basePrompt, nil
	}
	size := c.Size
	if size == nil {
		size = Characters
	}
	limit := c.CandidateLimit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	heading := strings.TrimSpace(c.Heading)
	if heading == "" {
		heading = DefaultHeading
	}

	memories, err := c.Retriever.RetrieveScored(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("retrieve memories: %w", err)
	}

	var lines []string
	for _, m := range memories {
		line := FormatLine(m.Record)
		if line == "" {
			continue
		}
		if size(render(basePrompt, heading, append(lines, line))) > maxSize {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return basePrompt, nil
	}
	return render(basePrompt, heading, lines), nil
}

// FormatLine renders a record as a single "[kind] content" line.
func FormatLine(rec model.MemoryRecord) string {
	content := strings.Join(strings.Fields(rec.Content), " ")
	if content == "" {
		return ""
	}
	content = strings.ReplaceAll(content, "`", "'")
	return "[" + string(rec.Kind) + "] " + content
}

func render(base, heading string, lines []string) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(heading)
	sb.WriteString(":\n")
	sb.WriteString(strings.Join(lines, "\n"))
	return sb.String()
}
