package recorder

import (
	"context"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

type ctxKey int

const (
	memoriesKey ctxKey = iota
	deltaKey
)

// ContextMemories returns the memories the pre-execution hook attached to ctx.
func ContextMemories(ctx context.Context) []model.MemoryRecord {
	mems, _ := ctx.Value(memoriesKey).([]model.MemoryRecord)
	return mems
}

func withMemories(ctx context.Context, mems []model.MemoryRecord) context.Context {
	return context.WithValue(ctx, memoriesKey, mems)
}

// WithImportanceDelta adjusts the importance of memories recorded under ctx.
func WithImportanceDelta(ctx context.Context, delta float64) context.Context {
	return context.WithValue(ctx, deltaKey, delta)
}

func importanceDelta(ctx context.Context) *float64 {
	if d, ok := ctx.Value(deltaKey).(float64); ok {
		return &d
	}
	return nil
}
