package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPointIDIsDeterministic(t *testing.T) {
	if PointID("mem-1") != PointID("mem-1") {
		t.Fatal("point ids must be stable")
	}
	if PointID("mem-1") == PointID("mem-2") {
		t.Fatal("distinct memories must map to distinct points")
	}
}

func TestQdrantStoreUpsertAndQuery(t *testing.T) {
	var upserted map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/mem/points"):
			_ = json.Unmarshal(body, &upserted)
			_, _ = w.Write([]byte(`{"status":"ok","time":0.001,"result":{"status":"completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/mem/points/search":
			_, _ = w.Write([]byte(`{"status":"ok","result":[
				{"id":"x","score":0.42,"payload":{"memory_id":"b","document":"second","kind":"reflection"}},
				{"id":"y","score":0.91,"payload":{"memory_id":"a","document":"first","importance":0.5}}
			]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/mem/points/count":
			_, _ = w.Write([]byte(`{"status":"ok","result":{"count":2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	qs := NewQdrantStore(srv.URL, "mem", "k", 3)
	ctx := context.Background()
	if err := qs.Upsert(ctx, "a", []float32{1, 0, 0}, "first", map[string]any{"importance": 0.5}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	points := upserted["points"].([]any)
	point := points[0].(map[string]any)
	if point["id"] != PointID("a") {
		t.Fatalf("unexpected point id: %v", point["id"])
	}
	if payload := point["payload"].(map[string]any); payload["memory_id"] != "a" || payload["document"] != "first" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	res, err := qs.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res) != 2 || res[0].ID != "a" || res[0].Document != "first" || res[0].Similarity != 0.91 {
		t.Fatalf("unexpected results: %+v", res)
	}
	if _, ok := res[1].Metadata["memory_id"]; ok {
		t.Fatal("reserved payload keys must be stripped from metadata")
	}
	if n, err := qs.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count: %d %v", n, err)
	}
}

func TestQdrantStoreSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":{"error":"overloaded"}}`))
	}))
	defer srv.Close()
	qs := NewQdrantStore(srv.URL, "mem", "", 3)
	if _, err := qs.Query(context.Background(), []float32{1}, 1); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected http error, got %v", err)
	}
	var st qdrantStatus
	if err := json.Unmarshal([]byte(`{"error":"bad"}`), &st); err != nil || st.err() == nil {
		t.Fatalf("error status not decoded: %+v %v", st, err)
	}
}
