package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunk"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/extract"
	"github.com/fyrsmithlabs/corpusd/internal/generate"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// app holds the wired components shared by the serve and one-shot commands.
type app struct {
	config   *config.Config
	logger   *zap.Logger
	store    vectorstore.Store
	registry registry.Registry
	pipeline *pipeline.Service
}

// newApp loads configuration and wires the pipeline's collaborators.
// Callers must Close the returned app.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	store, err := vectorstore.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	reg, err := registry.NewRegistry(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		logger.Sync()
		return nil, fmt.Errorf("building document registry: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		APIKey:            cfg.Embedding.APIKey.Value(),
		Dimension:         cfg.Embedding.Dimension,
		Timeout:           cfg.Embedding.Timeout.Duration(),
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
	if err != nil {
		_ = reg.Close()
		_ = store.Close()
		logger.Sync()
		return nil, fmt.Errorf("building embedding service: %w", err)
	}

	generator, err := generate.NewService(generate.Config{
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		APIKey:  cfg.Generation.APIKey.Value(),
		Timeout: cfg.Generation.Timeout.Duration(),
	})
	if err != nil {
		_ = reg.Close()
		_ = store.Close()
		logger.Sync()
		return nil, fmt.Errorf("building generation service: %w", err)
	}

	splitter, err := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		_ = reg.Close()
		_ = store.Close()
		logger.Sync()
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	pipe, err := pipeline.NewService(
		splitter,
		embedder,
		store,
		reg,
		extract.New(),
		generator,
		pipeline.Config{MaxUploadBytes: cfg.Ingest.MaxUploadBytes()},
		logger,
	)
	if err != nil {
		_ = reg.Close()
		_ = store.Close()
		logger.Sync()
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &app{
		config:   cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		pipeline: pipe,
	}, nil
}

// Close releases the app's resources in reverse wiring order.
func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		a.logger.Warn("closing registry", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	logging.Sync(a.logger)
}

// commandContext bounds one-shot commands so a hung backend cannot stall
// the CLI forever.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}
