package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	ingestReq   pipeline.IngestRequest
	ingestErr   error
	queryHits   []vectorstore.ScoredChunk
	queryErr    error
	lastQuery   string
	lastPart    string
	lastK       int
	askAnswer   pipeline.Answer
	deleteRes   pipeline.DeleteResult
	deletedID   string
}

func (f *fakePipeline) Ingest(_ context.Context, req pipeline.IngestRequest) (pipeline.IngestResult, error) {
	f.ingestReq = req
	if f.ingestErr != nil {
		return pipeline.IngestResult{}, f.ingestErr
	}
	return pipeline.IngestResult{DocumentID: "doc-1", Chunks: 2}, nil
}

func (f *fakePipeline) Query(_ context.Context, query, partition string, k int) ([]vectorstore.ScoredChunk, error) {
	f.lastQuery, f.lastPart, f.lastK = query, partition, k
	return f.queryHits, f.queryErr
}

func (f *fakePipeline) Ask(_ context.Context, question, partition string, k int) (pipeline.Answer, error) {
	f.lastQuery, f.lastPart, f.lastK = question, partition, k
	if f.queryErr != nil {
		return pipeline.Answer{}, f.queryErr
	}
	return f.askAnswer, nil
}

func (f *fakePipeline) Delete(_ context.Context, documentID string) (pipeline.DeleteResult, error) {
	f.deletedID = documentID
	return f.deleteRes, nil
}

// fakeRegistry serves documents from a map.
type fakeRegistry struct {
	docs map[string]registry.Document
	err  error
}

func (f *fakeRegistry) Upsert(_ context.Context, doc registry.Document) error { return f.err }
func (f *fakeRegistry) Delete(_ context.Context, id string) (bool, error)     { return false, f.err }
func (f *fakeRegistry) Close() error                                          { return nil }

func (f *fakeRegistry) Get(_ context.Context, id string) (*registry.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *fakeRegistry) List(_ context.Context, partition string) ([]registry.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []registry.Document
	for _, doc := range f.docs {
		if doc.Partition == partition {
			out = append(out, doc)
		}
	}
	return out, nil
}

func setupTestServer(t *testing.T, p *fakePipeline, reg *fakeRegistry) *Server {
	t.Helper()
	if p == nil {
		p = &fakePipeline{}
	}
	if reg == nil {
		reg = &fakeRegistry{docs: map[string]registry.Document{}}
	}
	server, err := NewServer(p, reg, zap.NewNop(), &Config{
		Host:             "localhost",
		Port:             8080,
		DefaultPartition: "default",
		MaxUploadBytes:   1 << 20,
	})
	require.NoError(t, err)
	return server
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		_, err := NewServer(nil, &fakeRegistry{}, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakePipeline{}, &fakeRegistry{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakePipeline{}, &fakeRegistry{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "default", server.config.DefaultPartition)
		assert.Equal(t, 8080, server.config.Port)
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleIngest(t *testing.T) {
	t.Run("ingests an uploaded file", func(t *testing.T) {
		p := &fakePipeline{}
		server := setupTestServer(t, p, nil)

		body, contentType := multipartUpload(t, map[string]string{"partition": "docs"}, "notes.txt", []byte("hello world"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "notes.txt", p.ingestReq.Filename)
		assert.Equal(t, "docs", p.ingestReq.Partition)
		assert.Equal(t, []byte("hello world"), p.ingestReq.Data)

		var resp pipeline.IngestResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "doc-1", resp.DocumentID)
		assert.Equal(t, 2, resp.Chunks)
	})

	t.Run("applies the default partition", func(t *testing.T) {
		p := &fakePipeline{}
		server := setupTestServer(t, p, nil)

		body, contentType := multipartUpload(t, nil, "notes.txt", []byte("hello"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "default", p.ingestReq.Partition)
	})

	t.Run("missing file field is a bad request", func(t *testing.T) {
		server := setupTestServer(t, nil, nil)

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("partition", "docs"))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &buf)
		req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized upload is rejected before the pipeline", func(t *testing.T) {
		p := &fakePipeline{}
		server, err := NewServer(p, &fakeRegistry{}, zap.NewNop(), &Config{
			Host: "localhost", Port: 8080, DefaultPartition: "default", MaxUploadBytes: 4,
		})
		require.NoError(t, err)

		body, contentType := multipartUpload(t, nil, "big.txt", []byte("123456789"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Empty(t, p.ingestReq.Filename)
	})

	t.Run("pipeline validation errors map to bad request", func(t *testing.T) {
		p := &fakePipeline{ingestErr: fmt.Errorf("%w: blank.txt", pipeline.ErrNoText)}
		server := setupTestServer(t, p, nil)

		body, contentType := multipartUpload(t, nil, "blank.txt", []byte("   "))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider failures map to bad gateway", func(t *testing.T) {
		p := &fakePipeline{ingestErr: fmt.Errorf("embedding: %w", embeddings.ErrProviderFailed)}
		server := setupTestServer(t, p, nil)

		body, contentType := multipartUpload(t, nil, "a.txt", []byte("hello"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleQuery(t *testing.T) {
	t.Run("returns ranked results", func(t *testing.T) {
		p := &fakePipeline{queryHits: []vectorstore.ScoredChunk{
			{Chunk: vectorstore.Chunk{ID: "d:0", Text: "hello"}, Score: 0.9},
		}}
		server := setupTestServer(t, p, nil)

		body, _ := json.Marshal(QueryRequest{Query: "greeting", Partition: "docs", K: 3})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "greeting", p.lastQuery)
		assert.Equal(t, "docs", p.lastPart)
		assert.Equal(t, 3, p.lastK)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "d:0", resp.Results[0].Chunk.ID)
	})

	t.Run("defaults k and partition", func(t *testing.T) {
		p := &fakePipeline{}
		server := setupTestServer(t, p, nil)

		body, _ := json.Marshal(QueryRequest{Query: "anything"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, DefaultTopK, p.lastK)
		assert.Equal(t, "default", p.lastPart)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
	})

	t.Run("empty query is a bad request", func(t *testing.T) {
		server := setupTestServer(t, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte(`{}`)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage failure maps to service unavailable", func(t *testing.T) {
		p := &fakePipeline{queryErr: fmt.Errorf("search: %w", vectorstore.ErrStorageUnavailable)}
		server := setupTestServer(t, p, nil)

		body, _ := json.Marshal(QueryRequest{Query: "anything"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleAsk(t *testing.T) {
	p := &fakePipeline{askAnswer: pipeline.Answer{
		Text:    "Rayleigh scattering.",
		Sources: []vectorstore.ScoredChunk{{Chunk: vectorstore.Chunk{ID: "d:0"}, Score: 1}},
	}}
	server := setupTestServer(t, p, nil)

	body, _ := json.Marshal(QueryRequest{Query: "why is the sky blue", Partition: "science"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "science", p.lastPart)

	var resp pipeline.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Rayleigh scattering.", resp.Text)
	require.Len(t, resp.Sources, 1)
}

func TestHandleDocuments(t *testing.T) {
	reg := &fakeRegistry{docs: map[string]registry.Document{
		"doc-1": {ID: "doc-1", Filename: "a.txt", Partition: "default", NumChunks: 2, Indexed: true},
		"doc-2": {ID: "doc-2", Filename: "b.txt", Partition: "other", NumChunks: 1, Indexed: true},
	}}

	t.Run("lists documents in the partition", func(t *testing.T) {
		server := setupTestServer(t, nil, reg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ListDocumentsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Documents, 1)
		assert.Equal(t, "doc-1", resp.Documents[0].ID)
	})

	t.Run("gets a single document", func(t *testing.T) {
		server := setupTestServer(t, nil, reg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-2", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var doc registry.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "b.txt", doc.Filename)
	})

	t.Run("unknown document is not found", func(t *testing.T) {
		server := setupTestServer(t, nil, reg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleDeleteDocument(t *testing.T) {
	t.Run("deletes an existing document", func(t *testing.T) {
		p := &fakePipeline{deleteRes: pipeline.DeleteResult{DocumentID: "doc-1", ChunksRemoved: 3, Existed: true}}
		server := setupTestServer(t, p, nil)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "doc-1", p.deletedID)

		var resp pipeline.DeleteResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.ChunksRemoved)
	})

	t.Run("deleting an unknown document is not found", func(t *testing.T) {
		p := &fakePipeline{deleteRes: pipeline.DeleteResult{DocumentID: "nope"}}
		server := setupTestServer(t, p, nil)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/nope", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
