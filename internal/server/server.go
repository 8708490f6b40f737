// Package server provides the HTTP API for Kansa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Auditor answers audit requests.
type Auditor interface {
	Audit(ctx context.Context, query, instruction string) (models.AuditResult, error)
}

// FileIndexer ingests a saved upload into the index and persists it.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string) (int, error)
	Mode() string
}

// IndexStatus reports on the vector index.
type IndexStatus interface {
	Loaded() bool
	Exists() bool
	Info() models.IndexInfo
}

// WatchService lists the inbox directories being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the Kansa API.
type Server struct {
	index   IndexStatus
	indexer FileIndexer
	auditor Auditor
	llmName string
	watch   WatchService
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithAuditor enables /audit. name identifies the language model in /status.
// Without an auditor /audit answers 503.
func WithAuditor(a Auditor, name string) ServerOption {
	return func(s *Server) {
		s.auditor = a
		s.llmName = name
	}
}

// WithWatch reports the inbox watcher's directories in /status.
func WithWatch(w WatchService) ServerOption {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(cfg *config.Config, index IndexStatus, idx FileIndexer, opts ...ServerOption) *Server {
	s := &Server{
		index:   index,
		indexer: idx,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))

	r.Post("/upload", s.handleUpload)
	r.Post("/audit", s.handleAudit)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// requestTimeout leaves room for one full model call on top of retrieval.
func (s *Server) requestTimeout() time.Duration {
	return s.config.LLM.Timeout + 30*time.Second
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
