package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	// AccessModeWrite opens a session with write access.
	AccessModeWrite Neo4jAccessMode = "write"
	// AccessModeRead opens a session with read access.
	AccessModeRead Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the Neo4j driver capabilities used by the store so tests can
// provide lightweight fakes.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jStore is the GraphStore backed by Neo4j.
type Neo4jStore struct {
	driver   neo4jDriver
	database string
}

var _ GraphStore = (*Neo4jStore)(nil)

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

// NewNeo4jStore wraps a driver (see WrapNeo4jDriver) and an optional database name.
func NewNeo4jStore(driver neo4jDriver, database string) (*Neo4jStore, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

// Run executes every operation of m inside a single write transaction.
func (s *Neo4jStore) Run(ctx context.Context, m model.Mutation) error {
	if s == nil || s.driver == nil {
		return ErrNeo4jUnavailable
	}
	stmts, err := cypherStatements(m)
	if err != nil {
		return err
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)
	for _, st := range stmts {
		res, err := tx.Run(ctx, st.query, st.params)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("neo4j run: %w", err)
		}
		if res != nil {
			_ = res.Close(ctx)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("neo4j commit: %w", err)
	}
	return nil
}

// CreateSchema installs uniqueness constraints on every node key.
func (s *Neo4jStore) CreateSchema(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	for _, query := range neo4jSchema {
		res, runErr := session.Run(ctx, query, nil)
		if runErr != nil {
			return fmt.Errorf("neo4j schema query: %w", runErr)
		}
		if res != nil {
			_ = res.Close(ctx)
		}
	}
	return nil
}

// Related returns the key values of target nodes reachable from a node over one edge of type t.
func (s *Neo4jStore) Related(ctx context.Context, from model.NodeRef, t model.EdgeType, target model.NodeLabel) ([]string, error) {
	if s == nil || s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	if from.Label.Key() == "" || target.Key() == "" || !t.Valid() {
		return nil, fmt.Errorf("unsupported traversal %s-[:%s]->%s", from.Label, t, target)
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	query := fmt.Sprintf("MATCH (a:%s {%s: $key})-[:%s]->(b:%s) RETURN b.%s AS key ORDER BY key",
		from.Label, from.Label.Key(), t, target, target.Key())
	res, err := session.Run(ctx, query, map[string]any{"key": from.KeyValue})
	if err != nil {
		return nil, fmt.Errorf("neo4j related: %w", err)
	}
	defer res.Close(ctx)
	var out []string
	for res.Next(ctx) {
		rec := res.Record()
		if rec == nil {
			continue
		}
		if v, ok := rec.Get("key"); ok {
			out = append(out, model.StringFromAny(v))
		}
	}
	return out, res.Err()
}

// Close releases the Neo4j driver.
func (s *Neo4jStore) Close() error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

type cypherStatement struct {
	query  string
	params map[string]any
}

// cypherStatements translates a mutation into parameterised Cypher. Labels, keys and
// relationship types cannot be parameters, so they come from the validated mutation only.
func cypherStatements(m model.Mutation) ([]cypherStatement, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	stmts := make([]cypherStatement, 0, len(m.Nodes)+len(m.Edges))
	for _, n := range m.Nodes {
		props := make(map[string]any, len(n.Props))
		for k, v := range n.Props {
			props[k] = v
		}
		set := "SET n += $props"
		if n.Create {
			set = "ON CREATE SET n += $props"
		}
		stmts = append(stmts, cypherStatement{
			query:  fmt.Sprintf("MERGE (n:%s {%s: $key}) %s", n.Label, n.Key, set),
			params: map[string]any{"key": n.KeyValue, "props": props},
		})
	}
	for _, e := range m.Edges {
		from, err := m.Node(e.From)
		if err != nil {
			return nil, err
		}
		to, err := m.Node(e.To)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, cypherStatement{
			query: fmt.Sprintf("MATCH (a:%s {%s: $from}), (b:%s {%s: $to}) MERGE (a)-[:%s]->(b)",
				from.Label, from.Key, to.Label, to.Key, e.Type),
			params: map[string]any{"from": from.KeyValue, "to": to.KeyValue},
		})
	}
	return stmts, nil
}

var neo4jSchema = []string{
	"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
	"CREATE CONSTRAINT protocol_name IF NOT EXISTS FOR (p:Protocol) REQUIRE p.name IS UNIQUE",
	"CREATE CONSTRAINT token_symbol IF NOT EXISTS FOR (t:Token) REQUIRE t.symbol IS UNIQUE",
	"CREATE CONSTRAINT transaction_record IF NOT EXISTS FOR (t:Transaction) REQUIRE t.recordId IS UNIQUE",
	"CREATE CONSTRAINT strategy_name IF NOT EXISTS FOR (s:Strategy) REQUIRE s.name IS UNIQUE",
	"CREATE INDEX transaction_id IF NOT EXISTS FOR (t:Transaction) ON (t.id)",
}
