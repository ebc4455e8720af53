package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
)

// registryFile is the flat-file registry name inside the data directory.
const registryFile = "registry.json"

// NewRegistry creates a Registry for the configured storage provider,
// mirroring the vector store factory.
func NewRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Registry, error) {
	switch cfg.Storage.Provider {
	case config.ProviderJSONFile, "":
		return NewJSONRegistry(JSONConfig{
			Path: filepath.Join(cfg.Storage.DataDir, registryFile),
		}, logger)

	case config.ProviderPostgres:
		return NewPostgresRegistry(ctx, PostgresConfig{
			DSN:      cfg.Storage.Postgres.DSN.Value(),
			MaxConns: cfg.Storage.Postgres.MaxConns,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported storage provider %q", ErrInvalidConfig, cfg.Storage.Provider)
	}
}
