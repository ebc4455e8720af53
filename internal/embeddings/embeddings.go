// Package embeddings turns text into dense vectors via an external provider.
//
// The provider is an external collaborator: corpusd only depends on the
// Provider contract. Upstream failures surface as ErrProviderFailed and are
// retryable by the caller; the ingestion pipeline never retries them itself.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors for embedding operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderFailed indicates the upstream service is unreachable,
	// rejected the request, or returned a malformed payload.
	ErrProviderFailed = errors.New("embedding provider failed")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// EmbedDocuments returns one vector per input text, in input order. An
	// empty or whitespace-only text yields an empty vector at its position
	// rather than being omitted, preserving positional correspondence; the
	// vector store excludes empty vectors from search.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery returns the embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
