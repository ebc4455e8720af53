package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageUnavailable indicates the backend cannot be reached or the
	// store file cannot be written. It is surfaced to the caller, never
	// silently degraded to the other backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is the upsert/delete/search contract shared by both backends.
//
// Implementations are safe for concurrent use. Rankings are deterministic:
// descending cosine similarity with ties broken by ascending chunk id.
type Store interface {
	// Upsert inserts new chunk ids or overwrites existing ones, returning the
	// number of rows written. The call is all-or-nothing in the relational
	// backend; the flat-file backend replaces the whole file atomically so a
	// crash mid-write never leaves a syntactically invalid file.
	Upsert(ctx context.Context, rows []Chunk) (int, error)

	// DeleteByDocument removes every chunk whose DocumentID matches and
	// returns how many were removed. A missing document yields (0, nil).
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Search returns at most k chunks from the given partition ordered by
	// descending cosine similarity to query, ties by ascending id. k <= 0
	// yields an empty result. Stored rows whose embedding is empty or has the
	// wrong dimension are skipped rather than aborting the query.
	Search(ctx context.Context, query []float32, partition string, k int) ([]ScoredChunk, error)

	// Close releases backend resources.
	Close() error
}

// ChunkID derives the stable chunk id for a document id and chunk index.
// Re-running ingestion for the same document produces the same ids, so
// re-upserts overwrite in place instead of duplicating.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}
