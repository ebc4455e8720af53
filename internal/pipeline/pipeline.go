// Package pipeline orchestrates document ingestion and retrieval.
//
// Ingestion runs extract, chunk, embed, store, register as one logical unit
// of work. Chunk rows are written in a single Upsert before the registry row
// is marked indexed, so a crash between the two leaves orphan chunks but
// never a document claiming chunks it does not have; re-ingesting with the
// same document id converges because chunk ids are deterministic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunk"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/extract"
	"github.com/fyrsmithlabs/corpusd/internal/generate"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Validation errors: bad input, never retried, never reaches the stores.
var (
	// ErrTooLarge indicates the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("document too large")

	// ErrNoText indicates chunking produced nothing to index.
	ErrNoText = errors.New("no text to index")

	// ErrEmptyPartition indicates the caller supplied no partition key.
	ErrEmptyPartition = errors.New("partition key required")
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Config holds the pipeline's limits.
type Config struct {
	// MaxUploadBytes bounds the raw document size, checked before parsing.
	MaxUploadBytes int64
}

// Service runs ingestion and retrieval.
type Service struct {
	splitter  chunk.Splitter
	embedder  embeddings.Provider
	store     vectorstore.Store
	reg       registry.Registry
	extractor extract.Extractor
	generator generate.Generator
	config    Config
	logger    *zap.Logger
}

// NewService wires the pipeline's collaborators. The generator may be nil
// when answer generation is not deployed; Ask then fails with the
// generator's absence as a provider failure.
func NewService(
	splitter chunk.Splitter,
	embedder embeddings.Provider,
	store vectorstore.Store,
	reg registry.Registry,
	extractor extract.Extractor,
	generator generate.Generator,
	cfg Config,
	logger *zap.Logger,
) (*Service, error) {
	if splitter.Size <= 0 {
		return nil, fmt.Errorf("splitter must be built with NewSplitter")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		reg:       reg,
		extractor: extractor,
		generator: generator,
		config:    cfg,
		logger:    logger.Named("pipeline"),
	}, nil
}

// IngestRequest carries one document into the pipeline.
type IngestRequest struct {
	Filename    string
	ContentType string
	Data        []byte

	// Partition scopes the document; the caller supplies it on every call.
	Partition string

	// DocumentID, when set, re-ingests an existing document in place.
	// Otherwise a new id is assigned.
	DocumentID string
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

// Ingest runs the full ingestion pipeline for one document.
//
// Any embedding failure aborts the whole document before anything is stored;
// there is exactly one attempt, retries are the caller's decision.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if strings.TrimSpace(req.Partition) == "" {
		return IngestResult{}, ErrEmptyPartition
	}
	if int64(len(req.Data)) > s.config.MaxUploadBytes {
		return IngestResult{}, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrTooLarge, len(req.Data), s.config.MaxUploadBytes)
	}

	text, err := s.extractor.Extract(ctx, req.Filename, req.ContentType, req.Data)
	if err != nil {
		return IngestResult{}, err
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrNoText, req.Filename)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return IngestResult{}, fmt.Errorf("%w: got %d vectors for %d chunks",
			embeddings.ErrProviderFailed, len(vectors), len(chunks))
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	now := timeNow().Unix()
	rows := make([]vectorstore.Chunk, len(chunks))
	for i, text := range chunks {
		rows[i] = vectorstore.Chunk{
			ID:         vectorstore.ChunkID(documentID, i),
			DocumentID: documentID,
			Index:      i,
			Partition:  req.Partition,
			Text:       text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	stored, err := s.store.Upsert(ctx, rows)
	if err != nil {
		return IngestResult{}, fmt.Errorf("storing chunks: %w", err)
	}

	// Registered only after the chunks are durably stored, so the indexed
	// flag never points at missing data.
	err = s.reg.Upsert(ctx, registry.Document{
		ID:        documentID,
		Filename:  req.Filename,
		SizeBytes: int64(len(req.Data)),
		Partition: req.Partition,
		NumChunks: stored,
		Indexed:   true,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("registering document: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.String("filename", req.Filename),
		zap.String("partition", req.Partition),
		zap.Int("chunks", stored),
	)

	return IngestResult{DocumentID: documentID, Chunks: stored}, nil
}

// Query embeds the query string and returns the top-k most similar chunks
// in the partition.
func (s *Service) Query(ctx context.Context, query, partition string, k int) ([]vectorstore.ScoredChunk, error) {
	if strings.TrimSpace(partition) == "" {
		return nil, ErrEmptyPartition
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return s.store.Search(ctx, vector, partition, k)
}

// DeleteResult reports a completed deletion.
type DeleteResult struct {
	DocumentID    string `json:"documentId"`
	ChunksRemoved int    `json:"chunksRemoved"`
	Existed       bool   `json:"existed"`
}

// Delete removes a document and all its chunks. The chunk cascade runs
// first: if the registry delete is then lost, re-ingestion with the same id
// heals the registry, whereas orphaned chunks without a registry row would
// otherwise keep matching searches.
func (s *Service) Delete(ctx context.Context, documentID string) (DeleteResult, error) {
	removed, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting chunks: %w", err)
	}

	existed, err := s.reg.Delete(ctx, documentID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting document: %w", err)
	}

	return DeleteResult{DocumentID: documentID, ChunksRemoved: removed, Existed: existed || removed > 0}, nil
}

// Answer is the result of retrieval-augmented generation.
type Answer struct {
	Text    string                    `json:"text"`
	Sources []vectorstore.ScoredChunk `json:"sources"`
}

// Ask retrieves the top-k chunks for the question and asks the generation
// provider for an answer grounded in them.
func (s *Service) Ask(ctx context.Context, question, partition string, k int) (Answer, error) {
	if s.generator == nil {
		return Answer{}, fmt.Errorf("%w: no generator configured", generate.ErrProviderFailed)
	}

	sources, err := s.Query(ctx, question, partition, k)
	if err != nil {
		return Answer{}, err
	}

	text, err := s.generator.Generate(ctx, buildPrompt(question, sources))
	if err != nil {
		return Answer{}, err
	}

	return Answer{Text: text, Sources: sources}, nil
}

// buildPrompt assembles the retrieved chunks into a grounded prompt.
func buildPrompt(question string, sources []vectorstore.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "Context %d:\n%s\n\n", i+1, src.Chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
