package store

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// ChromemStore is an embedded VectorStore on chromem-go. Metadata round-trips as strings.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemStore opens an in-process collection. A non-empty path persists it to disk.
func NewChromemStore(path, collection string) (*ChromemStore, error) {
	if collection == "" {
		collection = "agent_memories"
	}
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else if db, err = chromem.NewPersistentDB(path, false); err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, col: col}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        id,
		Content:   document,
		Embedding: append([]float32(nil), vector...),
		Metadata:  model.StringMetadata(metadata),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query clamps k to the collection size because chromem rejects larger result counts.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	if n := s.col.Count(); n < k {
		k = n
	}
	if k == 0 {
		return nil, nil
	}
	hits, err := s.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	results := make([]QueryResult, 0, len(hits))
	for _, h := range hits {
		meta := make(map[string]any, len(h.Metadata))
		for key, v := range h.Metadata {
			meta[key] = v
		}
		results = append(results, QueryResult{
			ID:         h.ID,
			Document:   h.Content,
			Metadata:   meta,
			Similarity: float64(h.Similarity),
		})
	}
	sortResults(results)
	return results, nil
}

func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.col.Count(), nil
}
