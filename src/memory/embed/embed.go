package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"os"
	"strings"
	"unicode"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	// ErrNotSupported is returned by providers that do not offer embeddings.
	ErrNotSupported = errors.New("embeddings not supported by this provider")
	// ErrEmptyEmbedding is returned when a provider answers with a zero-length vector.
	ErrEmptyEmbedding = errors.New("provider returned an empty embedding")
)

// DefaultDimensions is the vector width of the dummy embedder.
const DefaultDimensions = 256

// DummyEmbedder hashes lower-cased word tokens into a fixed-width bag of words.
// Texts that share words end up close in cosine space, which is enough for offline
// runs and tests.
type DummyEmbedder struct {
	Dimensions int
}

func (d DummyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dims := d.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return DummyEmbedding(text, dims), nil
}

// DummyEmbedding returns the deterministic bag-of-words vector for text, L2 normalised.
// Text without any word token yields a constant non-zero vector.
func DummyEmbedding(text string, dims int) []float32 {
	vec := make([]float32, dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(dims)]++
	}
	if len(tokens) == 0 {
		vec[0] = 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Config selects and parameterises a provider.
type Config struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// CacheEntries enables the ristretto cache when positive.
	CacheEntries int64 `yaml:"cache_entries"`
	// RequestsPerSecond enables client-side rate limiting when positive.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// New builds the provider named by cfg.Provider and applies the configured decorators.
// Unlike AutoEmbedder it never falls back silently.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "dummy", "offline":
		e = DummyEmbedder{Dimensions: cfg.Dimensions}
	case "openai":
		e, err = NewOpenAIEmbedder(cfg.Model)
	case "google", "gemini", "vertex", "vertexai":
		e, err = NewVertexAIEmbedder(ctx, cfg.Model)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.Model)
	case "voyage", "claude", "anthropic":
		e, err = NewVoyageEmbedder(cfg.Model)
	case "fastembed":
		e, err = NewFastEmbedder(ctx, defaultFastEmbedOptions())
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embed provider %s: %w", cfg.Provider, err)
	}
	if cfg.CacheEntries > 0 {
		if e, err = NewCachedEmbedder(e, cfg.CacheEntries); err != nil {
			return nil, err
		}
	}
	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimitedEmbedder(e, cfg.RequestsPerSecond, cfg.Burst)
	}
	return e, nil
}

// AutoEmbedder chooses a provider from env:
// AGENT_EMBED_PROVIDER=openai|google|gemini|ollama|voyage|fastembed
// AGENT_EMBED_MODEL=<model string>
// Unknown or unavailable providers fall back to DummyEmbedder.
func AutoEmbedder() Embedder {
	cfg := Config{
		Provider: strings.ToLower(strings.TrimSpace(os.Getenv("AGENT_EMBED_PROVIDER"))),
		Model:    strings.TrimSpace(os.Getenv("AGENT_EMBED_MODEL")),
	}
	if cfg.Provider != "" {
		e, err := New(context.Background(), cfg)
		if err == nil {
			return e
		}
		log.Printf("AutoEmbedder: %v", err)
	}
	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}

func checkVector(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return v, nil
}
