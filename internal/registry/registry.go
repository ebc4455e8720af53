// Package registry tracks document-level ingestion metadata.
//
// The registry mirrors the vector store's dual-backend pattern: a flat
// JSON-array file with atomic replacement, or a documents table in Postgres.
// The ingestion pipeline updates the registry only after the vector store
// upsert succeeds, so a document is never marked indexed without its chunks.
package registry

import (
	"context"
	"errors"
)

// Sentinel errors for registry operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageUnavailable indicates the backend cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Document is the ingestion metadata for one uploaded document.
type Document struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	Partition string `json:"partition"`
	NumChunks int    `json:"numChunks"`
	Indexed   bool   `json:"indexed"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Registry is the bookkeeping contract shared by both backends.
//
// Documents are written whole via Upsert; there are no partial field
// updates. A lookup of an absent id is a negative result, not an error.
type Registry interface {
	// Upsert inserts or replaces the document by id. CreatedAt is set only on
	// first insert; UpdatedAt is always set to the current time. Any
	// CreatedAt/UpdatedAt values on doc are ignored.
	Upsert(ctx context.Context, doc Document) error

	// Delete removes the document row, reporting whether one existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Get returns the document or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Document, error)

	// List returns the partition's documents ordered by (CreatedAt, ID).
	List(ctx context.Context, partition string) ([]Document, error)

	// Close releases backend resources.
	Close() error
}
