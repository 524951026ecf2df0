// Package memory re-exports the memory engine and its collaborators under one import.
package memory

import (
	embedpkg "github.com/Protocol-Lattice/defi-agent/src/memory/embed"
	memengine "github.com/Protocol-Lattice/defi-agent/src/memory/engine"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/prompt"
	storepkg "github.com/Protocol-Lattice/defi-agent/src/memory/store"
)

type (
	Engine          = memengine.Engine
	Options         = memengine.Options
	ScoreWeights    = memengine.ScoreWeights
	MetricsSnapshot = memengine.MetricsSnapshot
	ValidationError = memengine.ValidationError

	Kind         = model.Kind
	MemoryRecord = model.MemoryRecord
	ScoredMemory = model.ScoredMemory
	Mutation     = model.Mutation

	VectorStore       = storepkg.VectorStore
	GraphStore        = storepkg.GraphStore
	SchemaInitializer = storepkg.SchemaInitializer
	InMemoryStore     = storepkg.InMemoryStore
	InMemoryGraph     = storepkg.InMemoryGraph
	PostgresStore     = storepkg.PostgresStore
	QdrantStore       = storepkg.QdrantStore
	Neo4jStore        = storepkg.Neo4jStore

	Embedder      = embedpkg.Embedder
	DummyEmbedder = embedpkg.DummyEmbedder

	Compressor = prompt.Compressor
)

const (
	KindUserPreference    = model.KindUserPreference
	KindStrategyOutcome   = model.KindStrategyOutcome
	KindTransactionRecord = model.KindTransactionRecord
	KindMarketObservation = model.KindMarketObservation
	KindReflection        = model.KindReflection
)

var (
	ErrValidation           = memengine.ErrValidation
	ErrEmbeddingUnavailable = memengine.ErrEmbeddingUnavailable
	ErrStoreUnavailable     = memengine.ErrStoreUnavailable

	NewEngine      = memengine.NewEngine
	DefaultOptions = memengine.DefaultOptions
	NewCompressor  = prompt.NewCompressor

	NewInMemoryStore = storepkg.NewInMemoryStore
	NewInMemoryGraph = storepkg.NewInMemoryGraph
	NewPostgresStore = storepkg.NewPostgresStore
	NewQdrantStore   = storepkg.NewQdrantStore
	NewNeo4jStore    = storepkg.NewNeo4jStore

	AutoEmbedder = embedpkg.AutoEmbedder
)

// NewInMemory returns an engine backed by process-local stores and the dummy embedder.
func NewInMemory(opts Options) (*Engine, error) {
	return memengine.NewEngine(storepkg.NewInMemoryStore(), storepkg.NewInMemoryGraph(), embedpkg.DummyEmbedder{}, opts)
}
