package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// JSONConfig holds configuration for the flat-file backend.
type JSONConfig struct {
	// Path is the JSON array file holding all chunk rows.
	Path string

	// Dimension is the expected embedding dimension. Stored rows with any
	// other non-zero length are treated as malformed and skipped in search.
	Dimension int
}

// Validate validates the configuration.
func (c *JSONConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// JSONStore implements Store on a single JSON array file.
//
// Every write serializes the whole array to a temp file in the same directory
// and renames it over the old one, so the file is always syntactically valid
// even if the process dies mid-write. Readers tolerate a missing or empty
// file as an empty array and discard an unparseable file instead of failing.
type JSONStore struct {
	path   string
	dim    int
	logger *zap.Logger

	mu sync.RWMutex
}

// NewJSONStore creates a JSONStore, creating the parent directory if needed.
func NewJSONStore(cfg JSONConfig, logger *zap.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", ErrStorageUnavailable, err)
	}

	s := &JSONStore{
		path:   cfg.Path,
		dim:    cfg.Dimension,
		logger: logger.Named("vectorstore.jsonfile"),
	}

	s.logger.Info("json vector store initialized",
		zap.String("path", cfg.Path),
		zap.Int("dimension", cfg.Dimension),
	)
	return s, nil
}

// Upsert inserts or replaces rows by id and rewrites the file atomically.
func (s *JSONStore) Upsert(ctx context.Context, rows []Chunk) (int, error) {
	timer := startOp("jsonfile", "upsert")
	defer timer.done()

	if len(rows) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load()
	byID := make(map[string]Chunk, len(existing)+len(rows))
	for _, r := range existing {
		byID[r.ID] = r
	}
	for _, r := range rows {
		byID[r.ID] = r
	}

	merged := make([]Chunk, 0, len(byID))
	for _, r := range byID {
		merged = append(merged, r)
	}
	sortChunks(merged)

	if err := s.save(merged); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// DeleteByDocument removes every chunk owned by documentID.
func (s *JSONStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	timer := startOp("jsonfile", "delete")
	defer timer.done()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.load()
	kept := rows[:0]
	removed := 0
	for _, r := range rows {
		if r.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Search ranks the partition's chunks by cosine similarity to query.
func (s *JSONStore) Search(ctx context.Context, query []float32, partition string, k int) ([]ScoredChunk, error) {
	timer := startOp("jsonfile", "search")
	defer timer.done()

	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := s.load()
	s.mu.RUnlock()

	results := make([]ScoredChunk, 0, len(rows))
	for _, r := range rows {
		if r.Partition != partition {
			continue
		}
		// Rows with no embedding or the wrong dimension never match; skip
		// them instead of aborting the query.
		if len(r.Embedding) == 0 || len(r.Embedding) != s.dim {
			continue
		}
		results = append(results, ScoredChunk{Chunk: r, Score: Cosine(query, r.Embedding)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Close is a no-op for the flat-file backend.
func (s *JSONStore) Close() error {
	return nil
}

// load reads all rows, tolerating a missing, empty, or corrupt file.
func (s *JSONStore) load() []Chunk {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading store file failed, treating as empty", zap.Error(err))
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var rows []Chunk
	if err := json.Unmarshal(data, &rows); err != nil {
		s.logger.Warn("store file is not valid JSON, discarding contents", zap.Error(err))
		return nil
	}
	return rows
}

// save writes rows to a temp file in the same directory and renames it over
// the store file. Rename is atomic on POSIX filesystems, so concurrent
// readers see the old or the new complete file, never a truncated one.
func (s *JSONStore) save(rows []Chunk) error {
	if rows == nil {
		rows = []Chunk{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding rows: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing temp file: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: syncing temp file: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing store file: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// sortChunks keeps the file in a stable order so re-ingestion of the same
// data produces an identical file.
func sortChunks(rows []Chunk) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt < rows[j].CreatedAt
		}
		return rows[i].ID < rows[j].ID
	})
}
