package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config holds configuration for the HTTP embedding service.
type Config struct {
	// BaseURL is the base URL of the embedding API.
	BaseURL string

	// Model is the embedding model name, sent with every request.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Dimension is the expected vector dimension. Responses with any other
	// length are treated as malformed.
	Dimension int

	// Timeout bounds each request. Required: an unbounded embedding call
	// would stall the whole ingestion.
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the provider. 0 disables
	// throttling.
	RequestsPerSecond float64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Service is the HTTP Provider implementation.
type Service struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewService creates an embedding service with the given configuration.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Service{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

// embedRequest is the request body for the embed endpoint.
type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

// EmbedDocuments embeds texts, preserving positional correspondence: empty
// or whitespace-only inputs get an empty vector at their position and are
// not sent upstream.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	// Send only the texts with content; reinsert placeholders afterwards.
	payload := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = []float32{}
			continue
		}
		payload = append(payload, t)
		positions = append(positions, i)
	}
	if len(payload) == 0 {
		return results, nil
	}

	vectors, err := s.embed(ctx, payload)
	if err != nil {
		return nil, err
	}
	for i, pos := range positions {
		results[pos] = vectors[i]
	}
	return results, nil
}

// EmbedQuery embeds a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}
	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed performs one request against the provider and validates the payload.
func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Model: s.config.Model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProviderFailed, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrProviderFailed, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.config.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				ErrProviderFailed, i, len(v), s.config.Dimension)
		}
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
