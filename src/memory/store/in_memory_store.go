package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

type memoryDocument struct {
	vector   []float32
	document string
	metadata map[string]any
}

// InMemoryStore is a brute-force cosine VectorStore for tests and offline runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryDocument
	dims int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]memoryDocument)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = len(vector)
	} else if len(vector) != s.dims {
		return ErrDimensionMismatch
	}
	s.docs[id] = memoryDocument{
		vector:   append([]float32(nil), vector...),
		document: document,
		metadata: model.CloneAttributes(metadata),
	}
	return nil
}

// Query ranks every document; equal similarities are ordered by id.
func (s *InMemoryStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	s.mu.RLock()
	results := make([]QueryResult, 0, len(s.docs))
	for id, doc := range s.docs {
		results = append(results, QueryResult{
			ID:         id,
			Document:   doc.document,
			Metadata:   model.CloneAttributes(doc.metadata),
			Similarity: model.CosineSimilarity(vector, doc.vector),
		})
	}
	s.mu.RUnlock()
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Get returns a stored document, mainly for tests.
func (s *InMemoryStore) Get(id string) (QueryResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return QueryResult{}, false
	}
	return QueryResult{ID: id, Document: doc.document, Metadata: model.CloneAttributes(doc.metadata), Similarity: 1}, true
}

func sortResults(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity == results[j].Similarity {
			return results[i].ID < results[j].ID
		}
		return results[i].Similarity > results[j].Similarity
	})
}
