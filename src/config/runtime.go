package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Protocol-Lattice/defi-agent/src/agent"
	"github.com/Protocol-Lattice/defi-agent/src/concurrent"
	"github.com/Protocol-Lattice/defi-agent/src/memory/embed"
	"github.com/Protocol-Lattice/defi-agent/src/memory/engine"
	"github.com/Protocol-Lattice/defi-agent/src/memory/store"
	"github.com/Protocol-Lattice/defi-agent/src/models"
	"github.com/Protocol-Lattice/defi-agent/src/recorder"
	"github.com/Protocol-Lattice/defi-agent/src/reflection"
	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

// Runtime owns every client built from a Config. The entry point holds it for the
// process lifetime and calls Close on shutdown.
type Runtime struct {
	Config   Config
	Embedder embed.Embedder
	Vectors  store.VectorStore
	Graph    store.GraphStore
	Engine   *engine.Engine
	Recorder *recorder.Recorder
	LLM      models.LLM

	pool    *concurrent.Pool
	closers []func(context.Context) error
	logger  *log.Logger
}

// Build connects to the configured backends and wires the engine and recorder.
// On error everything already opened is closed.
func Build(ctx context.Context, cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, logger: log.New(os.Stderr, "runtime: ", log.LstdFlags)}
	if err := rt.build(ctx); err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config
	var err error
	if rt.Embedder, err = embed.New(ctx, cfg.Embedder); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	rt.addCloser(rt.Embedder)

	var pg *store.PostgresStore
	if rt.Vectors, pg, err = rt.openVectors(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if rt.Graph, err = rt.openGraph(ctx, pg); err != nil {
		return fmt.Errorf("graph store: %w", err)
	}

	opts := engine.Options{
		Weights:             cfg.Memory.Weights,
		HalfLife:            cfg.Memory.HalfLife,
		EmbedTimeout:        cfg.Memory.EmbedTimeout,
		StoreTimeout:        cfg.Memory.StoreTimeout,
		GraphTimeout:        cfg.Memory.GraphTimeout,
		CandidateMultiplier: cfg.Memory.CandidateMultiplier,
	}
	if strings.EqualFold(cfg.Memory.IDs, "snowflake") {
		if opts.IDs, err = engine.NewSnowflakeIDs(cfg.Memory.SnowflakeNode); err != nil {
			return err
		}
	}
	if rt.Engine, err = engine.NewEngine(rt.Vectors, rt.Graph, rt.Embedder, opts); err != nil {
		return err
	}

	recOpts := []recorder.Option{
		recorder.WithContextLimit(cfg.Recorder.ContextLimit),
		recorder.WithPreTimeout(cfg.Recorder.PreTimeout),
	}
	if cfg.Recorder.Async {
		rt.pool = concurrent.NewPool(cfg.Recorder.Workers, cfg.Recorder.Backlog)
		rt.closers = append(rt.closers, rt.pool.Close)
		recOpts = append(recOpts, recorder.WithAsync(rt.pool))
	}
	rt.Recorder = recorder.New(rt.Engine, recOpts...)

	if rt.LLM, err = models.NewLLMProvider(ctx, cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.PromptPrefix); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	rt.addCloser(rt.LLM)
	if cfg.LLM.CacheSize > 0 {
		cached, err := models.NewCachedLLM(rt.LLM, cfg.LLM.CacheSize, cfg.LLM.CacheTTL)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func(context.Context) error { cached.Close(); return nil })
		rt.LLM = cached
	}
	return nil
}

// NewAgent builds an agent over the runtime's engine, recorder and model.
func (rt *Runtime) NewAgent(systemPrompt string, toolset ...tools.Tool) (*agent.Agent, error) {
	return agent.New(agent.Options{
		Memory:       rt.Engine,
		Model:        rt.LLM,
		Recorder:     rt.Recorder,
		Tools:        toolset,
		SystemPrompt: systemPrompt,
		PromptBudget: rt.Config.LLM.PromptBudget,
	})
}

// NewReflector builds a reflector that judges memories with the runtime's model.
func (rt *Runtime) NewReflector(opts ...reflection.Option) *reflection.Reflector {
	return reflection.New(rt.Engine, rt.LLM, opts...)
}

func (rt *Runtime) openVectors(ctx context.Context) (store.VectorStore, *store.PostgresStore, error) {
	vc := rt.Config.Vector
	dims := rt.Config.Embedder.Dimensions
	var (
		vs store.VectorStore
		pg *store.PostgresStore
	)
	switch strings.ToLower(vc.Backend) {
	case "memory":
		return store.NewInMemoryStore(), nil, nil
	case "chromem":
		cs, err := store.NewChromemStore(vc.Path, vc.Collection)
		if err != nil {
			return nil, nil, err
		}
		vs = cs
	case "sqlite":
		ss, err := store.NewSQLiteStore(ctx, vc.Path)
		if err != nil {
			return nil, nil, err
		}
		rt.addCloser(ss)
		vs = ss
	case "postgres":
		ps, err := store.NewPostgresStore(ctx, vc.DSN, dims)
		if err != nil {
			return nil, nil, err
		}
		rt.addCloser(ps)
		vs, pg = ps, ps
	case "mongodb":
		ms, err := store.NewMongoStore(ctx, vc.DSN, vc.Database, vc.Collection, dims)
		if err != nil {
			return nil, nil, err
		}
		rt.addCloser(ms)
		vs = ms
	case "qdrant":
		vs = store.NewQdrantStore(vc.DSN, vc.Collection, vc.APIKey, dims)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", vc.Backend)
	}
	if vc.Schema {
		if si, ok := vs.(store.SchemaInitializer); ok {
			if err := si.CreateSchema(ctx); err != nil {
				return nil, nil, fmt.Errorf("create schema: %w", err)
			}
		}
	}
	if vc.Breaker.Enabled {
		vs = store.NewGuardedVectorStore(vs, store.BreakerConfig{MaxFailures: vc.Breaker.MaxFailures, Timeout: vc.Breaker.Timeout})
	}
	return vs, pg, nil
}

func (rt *Runtime) openGraph(ctx context.Context, pg *store.PostgresStore) (store.GraphStore, error) {
	gc := rt.Config.Graph
	var (
		gs     store.GraphStore
		schema store.SchemaInitializer
	)
	switch strings.ToLower(gc.Backend) {
	case "", "none":
		return nil, nil
	case "memory":
		return store.NewInMemoryGraph(), nil
	case "neo4j":
		driver, err := store.DialNeo4j(ctx, gc.URI, gc.Username, gc.Password)
		if err != nil {
			return nil, err
		}
		ns, err := store.NewNeo4jStore(store.WrapNeo4jDriver(driver), gc.Database)
		if err != nil {
			_ = driver.Close(ctx)
			return nil, err
		}
		rt.addCloser(ns)
		gs, schema = ns, ns
	case "postgres":
		if gc.URI != "" {
			ps, err := store.NewPostgresStore(ctx, gc.URI, rt.Config.Embedder.Dimensions)
			if err != nil {
				return nil, err
			}
			rt.addCloser(ps)
			pg = ps
		}
		if pg == nil {
			return nil, errors.New("postgres graph needs a postgres connection")
		}
		gs, schema = pg, pg
	default:
		return nil, fmt.Errorf("unknown backend %q", gc.Backend)
	}
	if gc.Schema {
		if err := schema.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if gc.Breaker.Enabled {
		gs = store.NewGuardedGraphStore(gs, store.BreakerConfig{MaxFailures: gc.Breaker.MaxFailures, Timeout: gc.Breaker.Timeout})
	}
	return gs, nil
}

func (rt *Runtime) addCloser(v any) {
	switch c := v.(type) {
	case interface{ Close(context.Context) error }:
		rt.closers = append(rt.closers, c.Close)
	case io.Closer:
		rt.closers = append(rt.closers, func(context.Context) error { return c.Close() })
	}
}

// Close drains pending recordings, then releases clients in reverse order of creation.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if len(errs) > 0 {
		rt.logger.Printf("warn: close: %v", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
