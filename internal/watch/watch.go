// Package watch ingests files dropped into a watched directory.
//
// Each created or modified file is debounced until writes settle, then read
// and handed to the ingestion pipeline under the configured partition.
// Ingestion failures are logged and skipped; the watcher itself only stops
// when its context is cancelled.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester is the slice of the pipeline the watcher drives.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (pipeline.IngestResult, error)
}

// Config holds watcher settings.
type Config struct {
	// Dir is the drop directory. Created if it does not exist.
	Dir string

	// Partition receives every document ingested from the directory.
	Partition string

	// Debounce is how long a file must stay quiet before it is ingested.
	Debounce time.Duration
}

// Watcher ingests files dropped into a directory.
type Watcher struct {
	ingester Ingester
	config   Config
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timers   map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the configured drop directory.
func NewWatcher(ingester Ingester, cfg Config, logger *zap.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Partition == "" {
		return nil, fmt.Errorf("watch partition is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		ingester: ingester,
		config:   cfg,
		logger:   logger.Named("watch"),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the watcher is running; events are
// handled in the background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(w.config.Dir, 0o755); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("creating watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(w.config.Dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return fmt.Errorf("watching %s: %w", w.config.Dir, err)
	}

	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directory",
		zap.String("dir", w.config.Dir),
		zap.String("partition", w.config.Partition),
	)

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.debounce(ctx, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// A file deleted mid-debounce must not be ingested.
		w.cancelDebounce(ev.Name)
	}
}

// debounce (re)arms the per-path timer so a file is ingested only after its
// writes have settled.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("cannot read dropped file", zap.String("path", path), zap.Error(err))
		return
	}

	res, err := w.ingester.Ingest(ctx, pipeline.IngestRequest{
		Filename:  filepath.Base(path),
		Data:      data,
		Partition: w.config.Partition,
	})
	if err != nil {
		w.logger.Warn("dropped file not ingested",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("dropped file ingested",
		zap.String("path", path),
		zap.String("document_id", res.DocumentID),
		zap.Int("chunks", res.Chunks),
	)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
