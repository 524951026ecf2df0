// Package agent is the decision point that consumes the memory engine.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/memory/engine"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/prompt"
	"github.com/Protocol-Lattice/defi-agent/src/models"
	"github.com/Protocol-Lattice/defi-agent/src/recorder"
	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

const (
	defaultSystemPrompt = "You are a DeFi execution agent. Use past experiences to avoid repeating failed actions and prefer what worked before."
	// DefaultPromptBudget is the character budget of a decision prompt.
	DefaultPromptBudget = 4000
)

// ErrUnknownTool is returned by Invoke for names missing from the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Memory is what the agent needs from the memory engine.
type Memory interface {
	Retrieve(ctx context.Context, query string, limit int) ([]model.MemoryRecord, error)
	RetrieveScored(ctx context.Context, query string, limit int) ([]model.ScoredMemory, error)
	TemporalWeight(createdAt time.Time) float64
	Weights() engine.ScoreWeights
}

// Options configure a new Agent.
type Options struct {
	Memory       Memory
	Model        models.LLM
	Recorder     *recorder.Recorder
	Tools        []tools.Tool
	SystemPrompt string
	PromptBudget int
	Size         prompt.SizeFunc
}

// Agent answers with memory-aware prompts and executes tools through the recorder.
type Agent struct {
	memory       Memory
	model        models.LLM
	recorder     *recorder.Recorder
	catalog      *tools.Catalog
	compressor   *prompt.Compressor
	systemPrompt string
	budget       int
}

// New creates an Agent. Tools are instrumented when a recorder is supplied.
func New(opts Options) (*Agent, error) {
	if opts.Memory == nil {
		return nil, errors.New("agent requires memory")
	}
	if opts.Model == nil {
		return nil, errors.New("agent requires a language model")
	}
	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	budget := opts.PromptBudget
	if budget <= 0 {
		budget = DefaultPromptBudget
	}

	catalog := tools.NewCatalog()
	for _, tool := range opts.Tools {
		if tool == nil {
			continue
		}
		if opts.Recorder != nil {
			tool = opts.Recorder.Instrument(tool)
		}
		if err := catalog.Register(tool); err != nil {
			return nil, err
		}
	}

	return &Agent{
		memory:       opts.Memory,
		model:        opts.Model,
		recorder:     opts.Recorder,
		catalog:      catalog,
		compressor:   &prompt.Compressor{Retriever: opts.Memory, Size: opts.Size},
		systemPrompt: systemPrompt,
		budget:       budget,
	}, nil
}

// RelevantMemories returns up to n records by similarity.
func (a *Agent) RelevantMemories(ctx context.Context, query string, n int) ([]model.MemoryRecord, error) {
	return a.memory.Retrieve(ctx, query, n)
}

// ScoredMemories returns up to n records ranked by combined relevance.
func (a *Agent) ScoredMemories(ctx context.Context, query string, n int) ([]model.ScoredMemory, error) {
	return a.memory.RetrieveScored(ctx, query, n)
}

// RelevanceScore scores rec for a raw cosine similarity against the current clock.
func (a *Agent) RelevanceScore(rec model.MemoryRecord, similarity float64) float64 {
	return engine.Score(a.memory.Weights(),
		model.NormalizeSimilarity(similarity),
		a.memory.TemporalWeight(rec.CreatedAt),
		rec.Importance)
}

// MemoryAwarePrompt appends the memories that fit maxSize to base.
func (a *Agent) MemoryAwarePrompt(ctx context.Context, base, query string, maxSize int) (string, error) {
	return a.compressor.Compress(ctx, base, query, maxSize)
}

// Decide asks the model what to do about query. Decisions are not recorded; only tool
// executions are.
func (a *Agent) Decide(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is empty")
	}
	base := a.basePrompt(query)
	p := base
	if budget := memoryBudget(classifyQuery(query), a.budget); budget > 0 {
		var err error
		if p, err = a.MemoryAwarePrompt(ctx, base, query, budget); err != nil {
			return "", fmt.Errorf("memory-aware prompt: %w", err)
		}
	}
	return a.model.Generate(ctx, p)
}

// Act runs Decide and, when the model replies with "tool:<name> <json args>", invokes
// that tool. The returned string is the tool output or the model reply.
func (a *Agent) Act(ctx context.Context, query string) (string, error) {
	decision, err := a.Decide(ctx, query)
	if err != nil {
		return "", err
	}
	name, args, ok := parseToolCall(decision)
	if !ok {
		return decision, nil
	}
	resp, err := a.Invoke(ctx, name, args)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Invoke executes a catalogued tool.
func (a *Agent) Invoke(ctx context.Context, name string, args map[string]any) (tools.ToolResponse, error) {
	tool, ok := a.catalog.Lookup(name)
	if !ok {
		return tools.ToolResponse{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Invoke(ctx, tools.ToolRequest{Arguments: args})
}

// ToolSpecs returns the registered tool specifications in registration order.
func (a *Agent) ToolSpecs() []tools.ToolSpec { return a.catalog.Specs() }

// Flush waits for pending asynchronous recordings.
func (a *Agent) Flush(ctx context.Context) error {
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Flush(ctx)
}

func (a *Agent) basePrompt(query string) string {
	var sb strings.Builder
	sb.WriteString(a.systemPrompt)
	if rendered := renderTools(a.catalog.Specs()); rendered != "" {
		sb.WriteString("\n\n")
		sb.WriteString(rendered)
	}
	sb.WriteString("\n\nCurrent request:\n")
	sb.WriteString(strings.TrimSpace(query))
	return sb.String()
}

func renderTools(specs []tools.ToolSpec) string {
	if len(specs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, spec := range specs {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", spec.Name, spec.Description))
		if len(spec.InputSchema) > 0 {
			if schema, err := json.Marshal(spec.InputSchema); err == nil {
				sb.WriteString("  Input schema: ")
				sb.Write(schema)
				sb.WriteString("\n")
			}
		}
	}
	sb.WriteString("Invoke a tool with: `tool:<name> <json arguments>`")
	return sb.String()
}

func parseToolCall(reply string) (string, map[string]any, bool) {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(strings.ToLower(trimmed), "tool:") {
		return "", nil, false
	}
	payload := strings.TrimSpace(trimmed[len("tool:"):])
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return "", nil, false
	}
	name := fields[0]
	return name, parseToolArguments(strings.TrimSpace(payload[len(name):])), true
}

func parseToolArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	if strings.HasPrefix(raw, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return payload
		}
	}
	return map[string]any{"input": raw}
}
