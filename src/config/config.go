// Package config loads runtime settings and wires the memory engine's collaborators.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/defi-agent/src/memory/embed"
	"github.com/Protocol-Lattice/defi-agent/src/memory/engine"
)

// Config is the complete runtime configuration.
type Config struct {
	Embedder embed.Config   `yaml:"embedder"`
	Vector   VectorConfig   `yaml:"vector"`
	Graph    GraphConfig    `yaml:"graph"`
	Memory   MemoryConfig   `yaml:"memory"`
	Recorder RecorderConfig `yaml:"recorder"`
	LLM      LLMConfig      `yaml:"llm"`
}

// BreakerConfig guards a remote store with a circuit breaker when Enabled.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// VectorConfig selects the vector store.
//
// Backends: memory, chromem, sqlite, postgres, mongodb, qdrant.
type VectorConfig struct {
	Backend    string        `yaml:"backend"`
	DSN        string        `yaml:"dsn"`
	Path       string        `yaml:"path"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	APIKey     string        `yaml:"api_key"`
	Schema     bool          `yaml:"create_schema"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// GraphConfig selects the knowledge-graph store.
//
// Backends: none, memory, neo4j, postgres (shares the vector DSN when empty).
type GraphConfig struct {
	Backend  string        `yaml:"backend"`
	URI      string        `yaml:"uri"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Schema   bool          `yaml:"create_schema"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// MemoryConfig tunes the engine.
type MemoryConfig struct {
	HalfLife            time.Duration       `yaml:"half_life"`
	Weights             engine.ScoreWeights `yaml:"weights"`
	EmbedTimeout        time.Duration       `yaml:"embed_timeout"`
	StoreTimeout        time.Duration       `yaml:"store_timeout"`
	GraphTimeout        time.Duration       `yaml:"graph_timeout"`
	CandidateMultiplier int                 `yaml:"candidate_multiplier"`
	// IDs is "uuid" or "snowflake".
	IDs           string `yaml:"ids"`
	SnowflakeNode int64  `yaml:"snowflake_node"`
}

// RecorderConfig tunes the tool-execution recorder.
type RecorderConfig struct {
	ContextLimit int           `yaml:"context_limit"`
	PreTimeout   time.Duration `yaml:"pre_timeout"`
	Async        bool          `yaml:"async"`
	Workers      int           `yaml:"workers"`
	Backlog      int           `yaml:"backlog"`
}

// LLMConfig selects the decision model.
type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	PromptPrefix string        `yaml:"prompt_prefix"`
	CacheSize    int64         `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	PromptBudget int           `yaml:"prompt_budget"`
}

// Default is the offline profile: dummy embedder and model, in-memory stores.
func Default() Config {
	opts := engine.DefaultOptions()
	return Config{
		Embedder: embed.Config{Provider: "dummy", Dimensions: embed.DefaultDimensions},
		Vector:   VectorConfig{Backend: "memory", Collection: "agent_memories", Database: "agent"},
		Graph:    GraphConfig{Backend: "memory", Database: "neo4j"},
		Memory: MemoryConfig{
			HalfLife:            opts.HalfLife,
			Weights:             opts.Weights,
			EmbedTimeout:        opts.EmbedTimeout,
			StoreTimeout:        opts.StoreTimeout,
			GraphTimeout:        opts.GraphTimeout,
			CandidateMultiplier: opts.CandidateMultiplier,
			IDs:                 "uuid",
		},
		Recorder: RecorderConfig{ContextLimit: 3, PreTimeout: 2 * time.Second, Workers: 4, Backlog: 64},
		LLM:      LLMConfig{Provider: "dummy", PromptBudget: 4000},
	}
}

// Load reads .env (when present), then the YAML file at path (when non-empty),
// then AGENT_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays AGENT_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("AGENT_EMBED_PROVIDER", &c.Embedder.Provider)
	str("AGENT_EMBED_MODEL", &c.Embedder.Model)
	str("AGENT_VECTOR_BACKEND", &c.Vector.Backend)
	str("AGENT_VECTOR_DSN", &c.Vector.DSN)
	str("AGENT_VECTOR_PATH", &c.Vector.Path)
	str("AGENT_VECTOR_COLLECTION", &c.Vector.Collection)
	str("AGENT_VECTOR_API_KEY", &c.Vector.APIKey)
	str("AGENT_GRAPH_BACKEND", &c.Graph.Backend)
	str("AGENT_NEO4J_URI", &c.Graph.URI)
	str("AGENT_NEO4J_USERNAME", &c.Graph.Username)
	str("AGENT_NEO4J_PASSWORD", &c.Graph.Password)
	str("AGENT_NEO4J_DATABASE", &c.Graph.Database)
	str("AGENT_LLM_PROVIDER", &c.LLM.Provider)
	str("AGENT_LLM_MODEL", &c.LLM.Model)
	str("AGENT_MEMORY_IDS", &c.Memory.IDs)

	if v, ok := lookup("AGENT_EMBED_DIMENSIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENT_EMBED_DIMENSIONS: %w", err)
		}
		c.Embedder.Dimensions = n
	}
	if v, ok := lookup("AGENT_MEMORY_HALF_LIFE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AGENT_MEMORY_HALF_LIFE: %w", err)
		}
		c.Memory.HalfLife = d
	}
	if v, ok := lookup("AGENT_RECORDER_ASYNC"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AGENT_RECORDER_ASYNC: %w", err)
		}
		c.Recorder.Async = b
	}
	return nil
}

var (
	vectorBackends = map[string]bool{"memory": true, "chromem": true, "sqlite": true, "postgres": true, "mongodb": true, "qdrant": true}
	graphBackends  = map[string]bool{"none": true, "memory": true, "neo4j": true, "postgres": true}
)

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	vb := strings.ToLower(c.Vector.Backend)
	if !vectorBackends[vb] {
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}
	switch vb {
	case "postgres", "mongodb", "qdrant":
		if c.Vector.DSN == "" {
			return fmt.Errorf("vector backend %s requires a dsn", vb)
		}
	case "chromem", "sqlite":
		if c.Vector.Path == "" {
			return fmt.Errorf("vector backend %s requires a path", vb)
		}
	}
	if (vb == "postgres" || vb == "mongodb" || vb == "qdrant") && c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("vector backend %s requires embedder dimensions", vb)
	}

	gb := strings.ToLower(c.Graph.Backend)
	if gb == "" {
		gb = "none"
	}
	if !graphBackends[gb] {
		return fmt.Errorf("unknown graph backend %q", c.Graph.Backend)
	}
	if gb == "neo4j" && c.Graph.URI == "" {
		return errors.New("graph backend neo4j requires a uri")
	}
	if gb == "postgres" && c.Graph.URI == "" && vb != "postgres" {
		return errors.New("graph backend postgres requires a uri or a postgres vector backend")
	}

	switch strings.ToLower(c.Memory.IDs) {
	case "", "uuid", "snowflake":
	default:
		return fmt.Errorf("unknown id generator %q", c.Memory.IDs)
	}
	opts := engine.Options{
		Weights:      c.Memory.Weights,
		HalfLife:     c.Memory.HalfLife,
		EmbedTimeout: c.Memory.EmbedTimeout,
		StoreTimeout: c.Memory.StoreTimeout,
		GraphTimeout: c.Memory.GraphTimeout,
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if c.Recorder.ContextLimit < 0 || c.Recorder.Workers < 0 || c.Recorder.Backlog < 0 {
		return errors.New("recorder limits must not be negative")
	}
	return nil
}
