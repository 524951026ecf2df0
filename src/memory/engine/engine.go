package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/memory/embed"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/store"
)

// Engine owns memory creation and retrieval across the vector and graph stores.
// It holds no mutable state besides metrics, so it is safe for concurrent use.
type Engine struct {
	vectors  store.VectorStore
	graph    store.GraphStore
	embedder embed.Embedder
	opts     Options
	metrics  *Metrics
	logger   *log.Logger
}

// NewEngine wires an engine. graph may be nil, which disables the knowledge-graph projection.
func NewEngine(vectors store.VectorStore, graph store.GraphStore, embedder embed.Embedder, opts Options) (*Engine, error) {
	if vectors == nil {
		return nil, errors.New("vector store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "memory-engine: ", log.LstdFlags)
	}
	return &Engine{
		vectors:  vectors,
		graph:    graph,
		embedder: embedder,
		opts:     opts,
		metrics:  &Metrics{},
		logger:   logger,
	}, nil
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Metrics exposes the engine counters.
func (e *Engine) Metrics() MetricsSnapshot { return e.metrics.Snapshot() }

// Weights returns the active (normalised) scoring weights.
func (e *Engine) Weights() ScoreWeights { return e.opts.Weights.Normalized() }

// Create validates, embeds and stores a new memory and returns its id. The vector write
// is authoritative: once it succeeds the id is returned even if the graph projection fails.
func (e *Engine) Create(ctx context.Context, content string, kind model.Kind, importance float64, attributes map[string]any) (string, error) {
	rec := model.MemoryRecord{
		Content:    content,
		Kind:       kind,
		Importance: importance,
		Attributes: model.CloneAttributes(attributes),
	}
	if err := validate(rec); err != nil {
		return "", err
	}
	rec.ID = e.opts.IDs.NewID()
	rec.CreatedAt = e.opts.Clock().UTC()

	vector, err := e.embed(ctx, rec.Content)
	if err != nil {
		return "", err
	}

	sctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	err = e.vectors.Upsert(sctx, rec.ID, vector, rec.Content, model.FlattenMetadata(rec))
	cancel()
	if err != nil {
		e.metrics.IncStoreFailures()
		return "", storeUnavailable("upsert", err)
	}
	e.metrics.IncCreated()

	if err := e.project(ctx, rec); err != nil {
		e.metrics.IncGraphStale()
		e.logf("warn: %v", err)
	}
	return rec.ID, nil
}

// ReplayGraph re-applies the graph projection of a stored record. Merges are idempotent,
// so it is safe to call after a stale projection or repeatedly.
func (e *Engine) ReplayGraph(ctx context.Context, rec model.MemoryRecord) error {
	return e.project(ctx, rec)
}

func (e *Engine) project(ctx context.Context, rec model.MemoryRecord) error {
	if e.graph == nil {
		return nil
	}
	m, ok, missing := DeriveMutation(rec)
	if !ok {
		if len(missing) > 0 {
			e.metrics.IncGraphSkipped()
			e.logf("graph projection skipped for %s %s: missing %s", rec.Kind, rec.ID, strings.Join(missing, ", "))
		}
		return nil
	}
	gctx, cancel := context.WithTimeout(ctx, e.opts.GraphTimeout)
	defer cancel()
	if err := e.graph.Run(gctx, m); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrGraphProjectionStale, rec.ID, err)
	}
	e.metrics.IncGraphApplied()
	return nil
}

// Retrieve returns up to limit records ordered by descending similarity to query.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int) ([]model.MemoryRecord, error) {
	hits, err := e.query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.MemoryRecord, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.RecordFromMetadata(h.ID, h.Document, h.Metadata))
	}
	e.metrics.IncRetrieved(len(out))
	return out, nil
}

// RetrieveScored ranks candidates by Score, ties going to the more recent record and then the id.
func (e *Engine) RetrieveScored(ctx context.Context, query string, limit int) ([]model.ScoredMemory, error) {
	if limit <= 0 {
		return []model.ScoredMemory{}, nil
	}
	hits, err := e.query(ctx, query, limit*e.opts.CandidateMultiplier)
	if err != nil {
		return nil, err
	}
	now := e.opts.Clock()
	weights := e.opts.Weights.Normalized()
	scored := make([]model.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		rec := model.RecordFromMetadata(h.ID, h.Document, h.Metadata)
		sim := model.NormalizeSimilarity(h.Similarity)
		temporal := TemporalWeightAt(now.Sub(rec.CreatedAt), e.opts.HalfLife)
		scored = append(scored, model.ScoredMemory{
			Record:     rec,
			Similarity: sim,
			Score:      Score(weights, sim, temporal, rec.Importance),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	e.metrics.IncRetrieved(len(scored))
	return scored, nil
}

// TemporalWeight is 0.5^(age/halfLife) measured against the engine clock. Future
// timestamps weigh 1.
func (e *Engine) TemporalWeight(createdAt time.Time) float64 {
	return TemporalWeightAt(e.opts.Clock().Sub(createdAt), e.opts.HalfLife)
}

func (e *Engine) query(ctx context.Context, query string, k int) ([]store.QueryResult, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vector, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	hits, err := e.vectors.Query(qctx, vector, k)
	if err != nil {
		e.metrics.IncStoreFailures()
		return nil, storeUnavailable("query", err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()
	vector, err := e.embedder.Embed(ectx, text)
	if err == nil && len(vector) == 0 {
		err = embed.ErrEmptyEmbedding
	}
	if err != nil {
		e.metrics.IncEmbedFailures()
		return nil, embeddingUnavailable(err)
	}
	return vector, nil
}

func validate(rec model.MemoryRecord) error {
	if strings.TrimSpace(rec.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if !model.ValidImportance(rec.Importance) {
		return &ValidationError{Field: "importance", Reason: fmt.Sprintf("%v is outside [0,1]", rec.Importance)}
	}
	if !rec.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", rec.Kind)}
	}
	return nil
}
