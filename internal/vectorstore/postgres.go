package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

// PostgresConfig holds configuration for the relational backend.
type PostgresConfig struct {
	// DSN is the Postgres connection string.
	DSN string

	// MaxConns bounds the connection pool size.
	MaxConns int

	// Dimension is the embedding dimension of the vector column.
	Dimension int
}

// Validate validates the configuration.
func (c *PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("%w: max conns must be positive", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// PostgresStore implements Store on a chunks table with a pgvector column.
//
// Search uses the cosine distance operator: pgvector defines `a <=> b` as
// 1 - cosine_similarity(a, b), so `1 - (embedding <=> query)` is exactly raw
// cosine similarity and ordering by ascending distance matches the flat-file
// backend's descending-similarity order.
//
// Rows whose text produced no embedding are stored with a NULL embedding
// column and excluded from search by the WHERE clause.
type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *zap.Logger
}

// NewPostgresStore connects to Postgres, verifies connectivity, and ensures
// the chunks schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
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
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating pool: %v", ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", ErrStorageUnavailable, err)
	}

	s := &PostgresStore{
		pool:   pool,
		dim:    cfg.Dimension,
		logger: logger.Named("vectorstore.postgres"),
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("postgres vector store initialized", zap.Int("dimension", cfg.Dimension))
	return s, nil
}

// ensureSchema creates the chunks table and its indexes if missing.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id            TEXT PRIMARY KEY,
			document_id   TEXT NOT NULL,
			chunk_index   INTEGER NOT NULL,
			partition_key TEXT NOT NULL,
			text          TEXT NOT NULL,
			embedding     vector(%d),
			created_at    BIGINT NOT NULL
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_partition_key ON chunks (partition_key)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensuring schema: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

// Upsert writes all rows in one transaction with conflict resolution on id.
func (s *PostgresStore) Upsert(ctx context.Context, rows []Chunk) (int, error) {
	timer := startOp("postgres", "upsert")
	defer timer.done()

	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		// Wrong-dimension and empty embeddings are stored as NULL so the row
		// survives but never matches a search.
		var embedding any
		if len(r.Embedding) == s.dim {
			embedding = pgvector.NewVector(r.Embedding)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, partition_key, text, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				document_id   = EXCLUDED.document_id,
				chunk_index   = EXCLUDED.chunk_index,
				partition_key = EXCLUDED.partition_key,
				text          = EXCLUDED.text,
				embedding     = EXCLUDED.embedding,
				created_at    = EXCLUDED.created_at`,
			r.ID, r.DocumentID, r.Index, r.Partition, r.Text, embedding, r.CreatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("%w: upserting rows: %v", ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: committing upsert: %v", ErrStorageUnavailable, err)
	}
	return len(rows), nil
}

// DeleteByDocument removes every chunk owned by documentID.
func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	timer := startOp("postgres", "delete")
	defer timer.done()

	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting chunks: %v", ErrStorageUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Search ranks the partition's chunks by cosine similarity to query.
func (s *PostgresStore) Search(ctx context.Context, query []float32, partition string, k int) ([]ScoredChunk, error) {
	timer := startOp("postgres", "search")
	defer timer.done()

	if k <= 0 {
		return nil, nil
	}

	// A zero or wrong-dimension query vector has similarity 0.0 to
	// everything by definition. pgvector's cosine distance is undefined for
	// zero vectors, so serve this edge from an id-ordered scan instead.
	if len(query) != s.dim || isZero(query) {
		return s.searchZeroQuery(ctx, partition, k)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, partition_key, text, embedding, created_at,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE partition_key = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3`,
		pgvector.NewVector(query), partition, k)
	if err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanScoredChunks(rows, nil)
}

// searchZeroQuery returns up to k rows ordered by ascending id, all scored 0.0.
func (s *PostgresStore) searchZeroQuery(ctx context.Context, partition string, k int) ([]ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, partition_key, text, embedding, created_at,
		       0.0 AS score
		FROM chunks
		WHERE partition_key = $1 AND embedding IS NOT NULL
		ORDER BY id ASC
		LIMIT $2`,
		partition, k)
	if err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	zero := 0.0
	return scanScoredChunks(rows, &zero)
}

// scanScoredChunks collects query results. When forceScore is non-nil every
// row gets that score instead of the computed one.
func scanScoredChunks(rows pgx.Rows, forceScore *float64) ([]ScoredChunk, error) {
	var results []ScoredChunk
	for rows.Next() {
		var (
			c         Chunk
			embedding pgvector.Vector
			score     float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Partition, &c.Text, &embedding, &c.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrStorageUnavailable, err)
		}
		c.Embedding = embedding.Slice()
		if forceScore != nil {
			score = *forceScore
		}
		results = append(results, ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading rows: %v", ErrStorageUnavailable, err)
	}
	return results, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
