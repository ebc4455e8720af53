package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
)

// chunksFile is the flat-file store name inside the data directory.
const chunksFile = "chunks.json"

// NewStore creates a Store for the configured storage provider.
//
// The provider is selected once at startup: "jsonfile" (default) uses a flat
// JSON file under the data directory, "postgres" uses a chunks table with a
// pgvector index. Both expose identical observable semantics.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Storage.Provider {
	case config.ProviderJSONFile, "":
		return NewJSONStore(JSONConfig{
			Path:      filepath.Join(cfg.Storage.DataDir, chunksFile),
			Dimension: cfg.Embedding.Dimension,
		}, logger)

	case config.ProviderPostgres:
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:       cfg.Storage.Postgres.DSN.Value(),
			MaxConns:  cfg.Storage.Postgres.MaxConns,
			Dimension: cfg.Embedding.Dimension,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported storage provider %q", ErrInvalidConfig, cfg.Storage.Provider)
	}
}
