package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevekb/steve/internal/config"
	"github.com/stevekb/steve/internal/embed"
	"github.com/stevekb/steve/internal/index"
	"github.com/stevekb/steve/internal/search"
	"github.com/stevekb/steve/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	manager, err := index.NewManager(s, embedder, index.ChunkParams{MaxTokens: 8, Overlap: 2})
	require.NoError(t, err)
	engine, err := search.NewEngine(s, embedder)
	require.NoError(t, err)

	return New(s, manager, engine, config.Default().Retrieval)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoContentType, echoJSONType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType = "Content-Type"
	echoJSONType    = "application/json"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// createTestCollection makes a collection via the API and returns its id.
func createTestCollection(t *testing.T, srv *Server, name string) int64 {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/collections", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	col := decode[store.Collection](t, rec)
	return col.ID
}

func ingestTestDocument(t *testing.T, srv *Server, collectionID int64, source, content string) int64 {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/ingest/text", map[string]any{
		"collection_id": collectionID,
		"source":        source,
		"content":       content,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	return int64(res["document_id"].(float64))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestCollectionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	id := createTestCollection(t, srv, "notes")

	rec := doJSON(t, srv, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cols := decode[[]store.Collection](t, rec)
	require.Len(t, cols, 1)
	assert.Equal(t, "notes", cols[0].Name)

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/collections/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/collections", nil)
	cols = decode[[]store.Collection](t, rec)
	assert.Empty(t, cols)
}

func TestCreateCollectionValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/collections", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndFetchDocument(t *testing.T) {
	srv := newTestServer(t)
	kb := createTestCollection(t, srv, "kb")

	rec := doJSON(t, srv, http.MethodPost, "/api/ingest/text", map[string]any{
		"collection_id": kb,
		"source":        "notes.txt",
		"title":         "Notes",
		"content":       "the quick brown fox jumps over the lazy dog",
		"file_path":     "/tmp/notes.txt",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	docID := int64(res["document_id"].(float64))
	assert.Positive(t, res["chunks"].(float64))
	assert.Equal(t, false, res["degraded"])

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/documents/%d", docID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[store.Document](t, rec)
	assert.Equal(t, "notes.txt", doc.Source)
	assert.Equal(t, "Notes", doc.Title)
	require.NotNil(t, doc.Meta)
	assert.Equal(t, "/tmp/notes.txt", doc.Meta.FilePath)
}

func TestIngestValidation(t *testing.T) {
	srv := newTestServer(t)
	kb := createTestCollection(t, srv, "kb")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing collection", map[string]any{"source": "a", "content": "b"}},
		{"missing source", map[string]any{"collection_id": kb, "content": "b"}},
		{"missing content", map[string]any{"collection_id": kb, "source": "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/ingest/text", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/ingest/text", map[string]any{
		"collection_id": 9999, "source": "a", "content": "b",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDocumentsByCollection(t *testing.T) {
	srv := newTestServer(t)
	a := createTestCollection(t, srv, "a")
	b := createTestCollection(t, srv, "b")

	ingestTestDocument(t, srv, a, "a.txt", "alpha text body")
	ingestTestDocument(t, srv, b, "b.txt", "beta text body")

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/documents?collection_id=%d", a), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode[[]store.Document](t, rec)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].Source)

	rec = doJSON(t, srv, http.MethodGet, "/api/documents", nil)
	docs = decode[[]store.Document](t, rec)
	assert.Len(t, docs, 2)
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t)
	kb := createTestCollection(t, srv, "kb")
	docID := ingestTestDocument(t, srv, kb, "a.txt", "to be deleted")

	rec := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/documents/%d", docID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/documents/%d", docID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	kb := createTestCollection(t, srv, "kb")
	ingestTestDocument(t, srv, kb, "fox.txt", "the quick brown fox jumps over the lazy dog")
	ingestTestDocument(t, srv, kb, "tax.txt", "quarterly tax filings are due in april")

	rec := doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{
		"query":          "fox",
		"collection_ids": []int64{kb},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["lexical_status"])
	results := body["results"].([]any)
	require.NotEmpty(t, results)
	first := results[0].(map[string]any)
	assert.Contains(t, first["text"], "fox")
}

func TestSearchValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{
		"query": "q", "alpha": 2.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{
		"query": "q", "mode": "fuzzy",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEmptyCollections(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/search", map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Empty(t, body["results"])
}

func TestRuntimeConfigUpdate(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[config.RetrievalConfig](t, rec)
	assert.Equal(t, 5, cfg.TopK)

	rec = doJSON(t, srv, http.MethodPut, "/api/config", map[string]any{
		"top_k": 3, "alpha": 0.2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cfg = decode[config.RetrievalConfig](t, rec)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 0.2, cfg.Alpha)

	// Invalid values are rejected and leave settings untouched.
	rec = doJSON(t, srv, http.MethodPut, "/api/config", map[string]any{"alpha": 1.7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.2, srv.retrievalSettings().Alpha)
}

func TestShutdown(t *testing.T) {
	srv := newTestServer(t)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
