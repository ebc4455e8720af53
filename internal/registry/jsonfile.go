package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// JSONConfig holds configuration for the flat-file backend.
type JSONConfig struct {
	// Path is the JSON array file holding all document rows.
	Path string
}

// Validate validates the configuration.
func (c *JSONConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return nil
}

// JSONRegistry implements Registry on a single JSON array file with the same
// write-temp-then-rename discipline as the flat-file vector store.
type JSONRegistry struct {
	path   string
	logger *zap.Logger

	mu sync.RWMutex
}

// NewJSONRegistry creates a JSONRegistry, creating the parent directory if
// needed.
func NewJSONRegistry(cfg JSONConfig, logger *zap.Logger) (*JSONRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", ErrStorageUnavailable, err)
	}

	return &JSONRegistry{
		path:   cfg.Path,
		logger: logger.Named("registry.jsonfile"),
	}, nil
}

// Upsert inserts or replaces the document by id.
func (r *JSONRegistry) Upsert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.load()
	now := timeNow().Unix()

	updated := false
	for i := range rows {
		if rows[i].ID == doc.ID {
			doc.CreatedAt = rows[i].CreatedAt
			doc.UpdatedAt = now
			rows[i] = doc
			updated = true
			break
		}
	}
	if !updated {
		doc.CreatedAt = now
		doc.UpdatedAt = now
		rows = append(rows, doc)
	}

	sortDocuments(rows)
	return r.save(rows)
}

// Delete removes the document row, reporting whether one existed.
func (r *JSONRegistry) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.load()
	kept := rows[:0]
	removed := false
	for _, d := range rows {
		if d.ID == id {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}
	if err := r.save(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the document or (nil, nil) when absent.
func (r *JSONRegistry) Get(ctx context.Context, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.load() {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, nil
}

// List returns the partition's documents ordered by (CreatedAt, ID).
func (r *JSONRegistry) List(ctx context.Context, partition string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []Document
	for _, d := range r.load() {
		if d.Partition == partition {
			docs = append(docs, d)
		}
	}
	sortDocuments(docs)
	return docs, nil
}

// Close is a no-op for the flat-file backend.
func (r *JSONRegistry) Close() error {
	return nil
}

// load reads all rows, tolerating a missing, empty, or corrupt file.
func (r *JSONRegistry) load() []Document {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("reading registry file failed, treating as empty", zap.Error(err))
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var rows []Document
	if err := json.Unmarshal(data, &rows); err != nil {
		r.logger.Warn("registry file is not valid JSON, discarding contents", zap.Error(err))
		return nil
	}
	return rows
}

// save atomically replaces the registry file.
func (r *JSONRegistry) save(rows []Document) error {
	if rows == nil {
		rows = []Document{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding rows: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
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
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing registry file: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func sortDocuments(rows []Document) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt < rows[j].CreatedAt
		}
		return rows[i].ID < rows[j].ID
	})
}
