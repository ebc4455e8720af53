// Package server provides the HTTP API for corpusd.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/extract"
	"github.com/fyrsmithlabs/corpusd/internal/generate"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// DefaultTopK is used when a query request does not set k.
const DefaultTopK = 5

// Pipeline is the subset of the ingestion pipeline the HTTP layer calls.
type Pipeline interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (pipeline.IngestResult, error)
	Query(ctx context.Context, query, partition string, k int) ([]vectorstore.ScoredChunk, error)
	Ask(ctx context.Context, question, partition string, k int) (pipeline.Answer, error)
	Delete(ctx context.Context, documentID string) (pipeline.DeleteResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultPartition is applied when a request carries no partition.
	DefaultPartition string

	// MaxUploadBytes bounds multipart uploads before they are buffered.
	MaxUploadBytes int64
}

// Server provides HTTP endpoints for corpusd.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	registry registry.Registry
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(p Pipeline, reg registry.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:             "localhost",
			Port:             8080,
			DefaultPartition: "default",
			MaxUploadBytes:   25 << 20,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		registry: reg,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/query", s.handleQuery)
	v1.POST("/ask", s.handleAsk)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// QueryRequest is the request body for POST /api/v1/query and /api/v1/ask.
type QueryRequest struct {
	Query     string `json:"query"`
	Partition string `json:"partition"`
	K         int    `json:"k"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Results []vectorstore.ScoredChunk `json:"results"`
}

// ListDocumentsResponse is the response body for GET /api/v1/documents.
type ListDocumentsResponse struct {
	Documents []registry.Document `json:"documents"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest accepts a multipart upload and runs it through the pipeline.
// Form fields: file (required), partition, documentId.
func (s *Server) handleIngest(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds upload limit of %d bytes", s.config.MaxUploadBytes))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer file.Close()

	// LimitReader backstops a lying Content-Length; the pipeline enforces
	// the limit again on the bytes actually read.
	data, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}

	res, err := s.pipeline.Ingest(c.Request().Context(), pipeline.IngestRequest{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Data:        data,
		Partition:   s.partitionOrDefault(c.FormValue("partition")),
		DocumentID:  c.FormValue("documentId"),
	})
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusCreated, res)
}

// handleQuery embeds the query and returns the top-k matching chunks.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.K <= 0 {
		req.K = DefaultTopK
	}

	hits, err := s.pipeline.Query(c.Request().Context(), req.Query, s.partitionOrDefault(req.Partition), req.K)
	if err != nil {
		return s.mapError(c, err)
	}
	if hits == nil {
		hits = []vectorstore.ScoredChunk{}
	}

	return c.JSON(http.StatusOK, QueryResponse{Results: hits})
}

// handleAsk answers a question grounded in the top-k retrieved chunks.
func (s *Server) handleAsk(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.K <= 0 {
		req.K = DefaultTopK
	}

	ans, err := s.pipeline.Ask(c.Request().Context(), req.Query, s.partitionOrDefault(req.Partition), req.K)
	if err != nil {
		return s.mapError(c, err)
	}
	if ans.Sources == nil {
		ans.Sources = []vectorstore.ScoredChunk{}
	}

	return c.JSON(http.StatusOK, ans)
}

// handleListDocuments lists the documents in a partition.
func (s *Server) handleListDocuments(c echo.Context) error {
	partition := s.partitionOrDefault(c.QueryParam("partition"))

	docs, err := s.registry.List(c.Request().Context(), partition)
	if err != nil {
		return s.mapError(c, err)
	}
	if docs == nil {
		docs = []registry.Document{}
	}

	return c.JSON(http.StatusOK, ListDocumentsResponse{Documents: docs})
}

// handleGetDocument returns one document's registry entry.
func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}

	return c.JSON(http.StatusOK, doc)
}

// handleDeleteDocument removes a document and its chunks.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	res, err := s.pipeline.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	if !res.Existed {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}

	return c.JSON(http.StatusOK, res)
}

func (s *Server) partitionOrDefault(partition string) string {
	if partition == "" {
		return s.config.DefaultPartition
	}
	return partition
}

// mapError translates the pipeline error taxonomy to HTTP status codes.
// Validation errors are the client's fault, provider failures are upstream,
// storage failures mean the backend is down.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, pipeline.ErrNoText),
		errors.Is(err, pipeline.ErrEmptyPartition),
		errors.Is(err, extract.ErrNoText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, extract.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, embeddings.ErrProviderFailed),
		errors.Is(err, generate.ErrProviderFailed):
		s.logger.Error("provider failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "upstream provider failed")
	case errors.Is(err, vectorstore.ErrStorageUnavailable),
		errors.Is(err, registry.ErrStorageUnavailable):
		s.logger.Error("storage failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("unhandled error",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
