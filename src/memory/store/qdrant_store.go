package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload keys reserved by QdrantStore.
const (
	qdrantIDKey       = "memory_id"
	qdrantDocumentKey = "document"
)

// qdrantNamespace derives point UUIDs from memory ids; Qdrant only accepts unsigned ints or UUIDs.
var qdrantNamespace = uuid.MustParse("6f1c1d0e-4a53-4f8e-9a61-4d2b7c0f8e11")

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type qdrantCountResult struct {
	Count int `json:"count"`
}

// QdrantStore is a VectorStore on the Qdrant REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	dimensions int
}

// NewQdrantStore creates a Qdrant-backed VectorStore implementation.
func NewQdrantStore(baseURL, collection, apiKey string, dimensions int) *QdrantStore {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if collection == "" {
		collection = "agent_memories"
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 15 * time.Second},
		dimensions: dimensions,
	}
}

// PointID maps a memory id onto the deterministic UUID used as Qdrant point id.
func PointID(memoryID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(memoryID)).String()
}

// CreateSchema creates the collection with cosine distance. An existing collection is left as is.
func (qs *QdrantStore) CreateSchema(ctx context.Context) error {
	if qs.dimensions <= 0 {
		return errors.New("qdrant: vector dimensions must be configured")
	}
	var exists qdrantEnvelope[json.RawMessage]
	if err := qs.do(ctx, http.MethodGet, "/collections/"+qs.collection, nil, &exists); err == nil {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": qs.dimensions, "distance": "Cosine"},
	}
	var out qdrantEnvelope[bool]
	if err := qs.do(ctx, http.MethodPut, "/collections/"+qs.collection, body, &out); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return out.Status.err()
}

func (qs *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[qdrantIDKey] = id
	payload[qdrantDocumentKey] = document
	body := map[string]any{
		"points": []qdrantPoint{{ID: PointID(id), Vector: vector, Payload: payload}},
	}
	var out qdrantEnvelope[json.RawMessage]
	if err := qs.do(ctx, http.MethodPut, "/collections/"+qs.collection+"/points?wait=true", body, &out); err != nil {
		return err
	}
	return out.Status.err()
}

func (qs *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var out qdrantEnvelope[[]qdrantScoredPoint]
	if err := qs.do(ctx, http.MethodPost, "/collections/"+qs.collection+"/points/search", body, &out); err != nil {
		return nil, err
	}
	if err := out.Status.err(); err != nil {
		return nil, err
	}
	results := make([]QueryResult, 0, len(out.Result))
	for _, p := range out.Result {
		meta := make(map[string]any, len(p.Payload))
		for key, v := range p.Payload {
			meta[key] = v
		}
		id, _ := meta[qdrantIDKey].(string)
		doc, _ := meta[qdrantDocumentKey].(string)
		delete(meta, qdrantIDKey)
		delete(meta, qdrantDocumentKey)
		if id == "" {
			id = strings.Trim(string(p.ID), `"`)
		}
		results = append(results, QueryResult{ID: id, Document: doc, Metadata: meta, Similarity: p.Score})
	}
	sortResults(results)
	return results, nil
}

func (qs *QdrantStore) Count(ctx context.Context) (int, error) {
	var out qdrantEnvelope[qdrantCountResult]
	if err := qs.do(ctx, http.MethodPost, "/collections/"+qs.collection+"/points/count", map[string]any{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, out.Status.err()
}

func (s qdrantStatus) err() error {
	if s.State == "error" {
		return fmt.Errorf("qdrant: %s", s.Error)
	}
	return nil
}

func (qs *QdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	u := qs.baseURL + path

	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if qs.apiKey != "" {
		req.Header.Set("api-key", qs.apiKey)
	}
	resp, err := qs.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("qdrant %s %s -> http %d: %s",
			method, u, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
