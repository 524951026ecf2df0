// Package tools defines the tool contract shared by the agent and the recorder.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ToolSpec describes a tool's interface for prompting and validation.
type ToolSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema map[string]any   `json:"input_schema"`
	Examples    []map[string]any `json:"examples,omitempty"`
}

// ToolRequest captures an invocation request for a tool.
type ToolRequest struct {
	SessionID string
	Arguments map[string]any
}

// ToolResponse is what a tool returns. Metadata may carry "status" and "transactionId".
type ToolResponse struct {
	Content  string
	Metadata map[string]string
}

// Tool exposes structured metadata and an invocation handler.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error)
}

// Func adapts a plain function to Tool.
type Func struct {
	ToolSpec ToolSpec
	Fn       func(ctx context.Context, req ToolRequest) (ToolResponse, error)
}

func (f Func) Spec() ToolSpec { return f.ToolSpec }

func (f Func) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	return f.Fn(ctx, req)
}

// Catalog is a static, case-insensitive tool registry.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewCatalog constructs a catalog seeded with the provided tools. Invalid entries are skipped.
func NewCatalog(tools ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]Tool)}
	for _, t := range tools {
		_ = c.Register(t)
	}
	return c
}

func normalizeName(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register adds a tool under its lower-cased name. Duplicate names return an error.
func (c *Catalog) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	spec := tool.Spec()
	key := normalizeName(spec.Name)
	if key == "" {
		return fmt.Errorf("tool name is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	c.tools[key] = tool
	c.order = append(c.order, key)
	return nil
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[normalizeName(name)]
	return t, ok
}

// Specs returns the tool specifications in registration order.
func (c *Catalog) Specs() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.tools[key].Spec())
	}
	return specs
}

// Tools returns the registered tools in order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.tools[key])
	}
	return out
}
