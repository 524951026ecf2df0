package store

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// QueryResult is one nearest-neighbour hit. Similarity is cosine in [-1,1].
type QueryResult struct {
	ID         string
	Document   string
	Metadata   map[string]any
	Similarity float64
}

// VectorStore holds embedded memory documents keyed by record id.
// Results from Query are ordered by descending similarity.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error)
}

// GraphStore applies knowledge-graph mutations with merge-or-create semantics.
// Running the same mutation twice leaves the graph unchanged.
type GraphStore interface {
	Run(ctx context.Context, m model.Mutation) error
}

// Counter is implemented by stores that can report how many documents they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// SchemaInitializer allows stores to expose optional schema/bootstrap routines.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}

var (
	// ErrInvalidVector is returned when an upsert or query carries no vector.
	ErrInvalidVector = errors.New("vector is empty")
	// ErrDimensionMismatch is returned when a vector does not match the store's width.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

func validateUpsert(id string, vector []float32) error {
	if id == "" {
		return errors.New("document id is required")
	}
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	return nil
}
