// Package config provides configuration loading for corpusd.
package config

import (
	"fmt"
	"time"
)

// Storage provider names accepted by Storage.Provider.
const (
	ProviderJSONFile = "jsonfile"
	ProviderPostgres = "postgres"
)

// Config is the root configuration for corpusd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Generation GenerationConfig `koanf:"generation"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Watch      WatchConfig      `koanf:"watch"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// StorageConfig selects and configures the storage backend.
//
// The provider is chosen once at startup; both the vector store and the
// document registry use the same provider.
type StorageConfig struct {
	// Provider is "jsonfile" or "postgres".
	Provider string `koanf:"provider"`

	// DataDir holds the flat-file stores (jsonfile provider only).
	DataDir string `koanf:"data_dir"`

	Postgres PostgresConfig `koanf:"postgres"`
}

// PostgresConfig holds connection settings for the relational backend.
type PostgresConfig struct {
	DSN      Secret `koanf:"dsn"`
	MaxConns int    `koanf:"max_conns"`
}

// EmbeddingConfig configures the external embedding provider.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`

	// Dimension is the expected embedding dimension. Vectors of any other
	// length are treated as malformed by the stores.
	Dimension int `koanf:"dimension"`

	// Timeout bounds each embedding request.
	Timeout Duration `koanf:"timeout"`

	// RequestsPerSecond throttles calls to the provider. 0 disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// GenerationConfig configures the answer generation provider.
type GenerationConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// IngestConfig holds ingestion limits and chunking parameters.
type IngestConfig struct {
	MaxUploadMB  int `koanf:"max_upload_mb"`
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// DefaultPartition is applied by the HTTP layer when a request carries
	// no partition. The core never infers it.
	DefaultPartition string `koanf:"default_partition"`
}

// WatchConfig configures the optional drop-directory watcher.
type WatchConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Dir       string `koanf:"dir"`
	Partition string `koanf:"partition"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (c IngestConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// applyDefaults fills unset fields with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = ProviderJSONFile
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.Postgres.MaxConns == 0 {
		cfg.Storage.Postgres.MaxConns = 5
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8081"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-004"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = Duration(30 * time.Second)
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:8082"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.5-flash"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Ingest.MaxUploadMB == 0 {
		cfg.Ingest.MaxUploadMB = 25
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 3500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 600
	}
	if cfg.Ingest.DefaultPartition == "" {
		cfg.Ingest.DefaultPartition = "default"
	}
	if cfg.Watch.Partition == "" {
		cfg.Watch.Partition = cfg.Ingest.DefaultPartition
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}

	switch c.Storage.Provider {
	case ProviderJSONFile:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir required for jsonfile provider")
		}
	case ProviderPostgres:
		if !c.Storage.Postgres.DSN.IsSet() {
			return fmt.Errorf("storage.postgres.dsn required for postgres provider")
		}
		if c.Storage.Postgres.MaxConns < 1 {
			return fmt.Errorf("storage.postgres.max_conns must be positive")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %q (supported: %s, %s)",
			c.Storage.Provider, ProviderJSONFile, ProviderPostgres)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Timeout.Duration() <= 0 {
		return fmt.Errorf("embedding.timeout must be positive")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second cannot be negative")
	}

	if c.Ingest.MaxUploadMB <= 0 {
		return fmt.Errorf("ingest.max_upload_mb must be positive, got %d", c.Ingest.MaxUploadMB)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 {
		return fmt.Errorf("ingest.chunk_overlap cannot be negative, got %d", c.Ingest.ChunkOverlap)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}

	if c.Watch.Enabled && c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir required when watch.enabled is true")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}

	return nil
}
