package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// PostgresStore implements VectorStore on Postgres + pgvector and GraphStore on plain
// node/edge tables, so a single database can serve both projections.
type PostgresStore struct {
	DB         *pgxpool.Pool
	dimensions int
}

// NewPostgresStore connects to Postgres. dimensions sizes the embedding column created by CreateSchema.
func NewPostgresStore(ctx context.Context, connStr string, dimensions int) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db, dimensions: dimensions}, nil
}

func (ps *PostgresStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if ps == nil || ps.DB == nil {
		return errors.New("postgres store is not connected")
	}
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = ps.DB.Exec(ctx, `
                INSERT INTO agent_memories (id, content, metadata, embedding)
                VALUES ($1, $2, $3::jsonb, $4::vector)
                ON CONFLICT (id) DO UPDATE
                SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
        `, id, document, string(metaJSON), vectorLiteral(vector))
	return err
}

// Query orders by cosine distance; similarity is reported as 1 - distance.
func (ps *PostgresStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if ps == nil || ps.DB == nil {
		return nil, errors.New("postgres store is not connected")
	}
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT id, content, metadata::text, (embedding <=> $1::vector) AS distance
        FROM agent_memories
        ORDER BY embedding <=> $1::vector, id
        LIMIT $2;
        `, vectorLiteral(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			res      QueryResult
			metaText string
			distance float64
		)
		if err := rows.Scan(&res.ID, &res.Document, &metaText, &distance); err != nil {
			return nil, err
		}
		res.Metadata = decodeMetadata(metaText)
		res.Similarity = 1 - distance
		results = append(results, res)
	}
	return results, rows.Err()
}

func (ps *PostgresStore) Count(ctx context.Context) (int, error) {
	if ps == nil || ps.DB == nil {
		return 0, nil
	}
	var count int
	err := ps.DB.QueryRow(ctx, `SELECT COUNT(*) FROM agent_memories`).Scan(&count)
	return count, err
}

// Embedding returns the stored vector of a memory.
func (ps *PostgresStore) Embedding(ctx context.Context, id string) ([]float32, error) {
	if ps == nil || ps.DB == nil {
		return nil, errors.New("postgres store is not connected")
	}
	var text string
	if err := ps.DB.QueryRow(ctx, `SELECT embedding::text FROM agent_memories WHERE id = $1`, id).Scan(&text); err != nil {
		return nil, err
	}
	return parseVector(text)
}

// Run applies a graph mutation inside one transaction.
func (ps *PostgresStore) Run(ctx context.Context, m model.Mutation) (err error) {
	if ps == nil || ps.DB == nil {
		return errors.New("postgres store is not connected")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	stmts, err := graphStatements(m)
	if err != nil {
		return err
	}
	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, st := range stmts {
		if _, err = tx.Exec(ctx, st.sql, st.args...); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CreateSchema ensures the pgvector extension and the memory and graph tables exist.
func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, postgresSchema(ps.dimensions)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

type sqlStatement struct {
	sql  string
	args []any
}

func graphStatements(m model.Mutation) ([]sqlStatement, error) {
	stmts := make([]sqlStatement, 0, len(m.Nodes)+len(m.Edges))
	for _, n := range m.Nodes {
		props := map[string]any{n.Key: n.KeyValue}
		for k, v := range n.Props {
			props[k] = v
		}
		b, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("encode %s props: %w", n.Label, err)
		}
		stmts = append(stmts, sqlStatement{
			sql: `
                INSERT INTO graph_nodes (label, key_value, key_name, props)
                VALUES ($1, $2, $3, $4::jsonb)
                ON CONFLICT (label, key_value) DO UPDATE SET props = graph_nodes.props || EXCLUDED.props`,
			args: []any{string(n.Label), n.KeyValue, n.Key, string(b)},
		})
	}
	for _, e := range m.Edges {
		stmts = append(stmts, sqlStatement{
			sql: `
                INSERT INTO graph_edges (edge_type, from_label, from_key, to_label, to_key)
                VALUES ($1, $2, $3, $4, $5)
                ON CONFLICT DO NOTHING`,
			args: []any{string(e.Type), string(e.From.Label), e.From.KeyValue, string(e.To.Label), e.To.KeyValue},
		})
	}
	return stmts, nil
}

func vectorLiteral(v []float32) string {
	return pgvector.NewVector(v).String()
}

func parseVector(text string) ([]float32, error) {
	var v pgvector.Vector
	if err := v.Parse(strings.TrimSpace(text)); err != nil {
		return nil, err
	}
	return v.Slice(), nil
}

func decodeMetadata(text string) map[string]any {
	meta := map[string]any{}
	if strings.TrimSpace(text) == "" {
		return meta
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		return map[string]any{}
	}
	return meta
}

func postgresSchema(dimensions int) string {
	column := "vector"
	if dimensions > 0 {
		column = fmt.Sprintf("vector(%d)", dimensions)
	}
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS agent_memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding %s NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS agent_memories_kind_idx ON agent_memories ((metadata->>'kind'));

CREATE TABLE IF NOT EXISTS graph_nodes (
    label TEXT NOT NULL,
    key_value TEXT NOT NULL,
    key_name TEXT NOT NULL,
    props JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (label, key_value)
);

CREATE TABLE IF NOT EXISTS graph_edges (
    edge_type TEXT NOT NULL,
    from_label TEXT NOT NULL,
    from_key TEXT NOT NULL,
    to_label TEXT NOT NULL,
    to_key TEXT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (edge_type, from_label, from_key, to_label, to_key),
    FOREIGN KEY (from_label, from_key) REFERENCES graph_nodes(label, key_value) ON DELETE CASCADE,
    FOREIGN KEY (to_label, to_key) REFERENCES graph_nodes(label, key_value) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS graph_edges_to_idx ON graph_edges (to_label, to_key);
`, column)
}
