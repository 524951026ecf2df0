package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// SQLiteStore is a file-backed VectorStore and GraphStore. Vectors are stored as JSON
// text and ranked in process, which suits single-agent deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the database at path. ":memory:" keeps everything in RAM.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.CreateSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_memories (id, content, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, embedding = excluded.embedding
	`, id, document, string(metaJSON), string(vecJSON))
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM agent_memories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var id, content, metaText, vecText string
		if err := rows.Scan(&id, &content, &metaText, &vecText); err != nil {
			return nil, err
		}
		var stored []float32
		if err := json.Unmarshal([]byte(vecText), &stored); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", id, err)
		}
		results = append(results, QueryResult{
			ID:         id,
			Document:   content,
			Metadata:   decodeMetadata(metaText),
			Similarity: model.CosineSimilarity(vector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_memories`).Scan(&n)
	return n, err
}

// Run applies a graph mutation in one transaction.
func (s *SQLiteStore) Run(ctx context.Context, m model.Mutation) (err error) {
	if err := m.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, n := range m.Nodes {
		props := map[string]any{n.Key: n.KeyValue}
		for k, v := range n.Props {
			props[k] = v
		}
		b, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("encode %s props: %w", n.Label, err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (label, key_value, key_name, props) VALUES (?, ?, ?, ?)
			ON CONFLICT(label, key_value) DO UPDATE SET props = json_patch(graph_nodes.props, excluded.props)
		`, string(n.Label), n.KeyValue, n.Key, string(b)); err != nil {
			return err
		}
	}
	for _, e := range m.Edges {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO graph_edges (edge_type, from_label, from_key, to_label, to_key) VALUES (?, ?, ?, ?, ?)
		`, string(e.Type), string(e.From.Label), e.From.KeyValue, string(e.To.Label), e.To.KeyValue); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EdgeCount reports how many relationships of type t exist.
func (s *SQLiteStore) EdgeCount(ctx context.Context, t model.EdgeType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_edges WHERE edge_type = ?`, string(t)).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent_memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS graph_nodes (
	label TEXT NOT NULL,
	key_value TEXT NOT NULL,
	key_name TEXT NOT NULL,
	props TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (label, key_value)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	edge_type TEXT NOT NULL,
	from_label TEXT NOT NULL,
	from_key TEXT NOT NULL,
	to_label TEXT NOT NULL,
	to_key TEXT NOT NULL,
	PRIMARY KEY (edge_type, from_label, from_key, to_label, to_key)
);
`
