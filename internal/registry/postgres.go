package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresConfig holds configuration for the relational backend.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// Validate validates the configuration.
func (c *PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("%w: max conns must be positive", ErrInvalidConfig)
	}
	return nil
}

// PostgresRegistry implements Registry on a documents table.
type PostgresRegistry struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRegistry connects to Postgres, verifies connectivity, and
// ensures the documents schema exists.
func NewPostgresRegistry(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing DSN", ErrInvalidConfig)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating pool: %v", ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", ErrStorageUnavailable, err)
	}

	r := &PostgresRegistry{
		pool:   pool,
		logger: logger.Named("registry.postgres"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// ensureSchema creates the documents table and its index if missing.
func (r *PostgresRegistry) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			filename      TEXT NOT NULL,
			size_bytes    BIGINT NOT NULL,
			partition_key TEXT NOT NULL,
			num_chunks    INTEGER NOT NULL,
			indexed       BOOLEAN NOT NULL,
			created_at    BIGINT NOT NULL,
			updated_at    BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_partition_key ON documents (partition_key)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensuring schema: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

// Upsert inserts or replaces the document by id. The conflict clause keeps
// created_at from the original insert.
func (r *PostgresRegistry) Upsert(ctx context.Context, doc Document) error {
	now := timeNow().Unix()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, filename, size_bytes, partition_key, num_chunks, indexed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			filename      = EXCLUDED.filename,
			size_bytes    = EXCLUDED.size_bytes,
			partition_key = EXCLUDED.partition_key,
			num_chunks    = EXCLUDED.num_chunks,
			indexed       = EXCLUDED.indexed,
			updated_at    = EXCLUDED.updated_at`,
		doc.ID, doc.Filename, doc.SizeBytes, doc.Partition, doc.NumChunks, doc.Indexed, now)
	if err != nil {
		return fmt.Errorf("%w: upserting document: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes the document row, reporting whether one existed.
func (r *PostgresRegistry) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %v", ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns the document or (nil, nil) when absent.
func (r *PostgresRegistry) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, filename, size_bytes, partition_key, num_chunks, indexed, created_at, updated_at
		FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.Partition, &doc.NumChunks,
			&doc.Indexed, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching document: %v", ErrStorageUnavailable, err)
	}
	return &doc, nil
}

// List returns the partition's documents ordered by (created_at, id).
func (r *PostgresRegistry) List(ctx context.Context, partition string) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, filename, size_bytes, partition_key, num_chunks, indexed, created_at, updated_at
		FROM documents WHERE partition_key = $1
		ORDER BY created_at ASC, id ASC`, partition)
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.Partition,
			&doc.NumChunks, &doc.Indexed, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrStorageUnavailable, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading rows: %v", ErrStorageUnavailable, err)
	}
	return docs, nil
}

// Close releases the connection pool.
func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}
