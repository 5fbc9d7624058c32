package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// SignedObjectStore is an object store whose presigned URLs this server can
// verify and serve itself (the filesystem backend).
type SignedObjectStore interface {
	driven.ObjectStore
	VerifySignature(key string, expires int64, signature string) error
	ContentType(key string) (string, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	ingest  driving.IngestService
	objects SignedObjectStore

	taskQueue driven.TaskQueue
	db        Pinger // PostgreSQL health check
	queueHost Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Version    string
	AuthSecret string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	ingest driving.IngestService,
	objects SignedObjectStore,
	taskQueue driven.TaskQueue,
	db Pinger,
	queueHost Pinger, // can be nil
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:    http.NewServeMux(),
		version:   cfg.Version,
		logger:    logger,
		ingest:    ingest,
		objects:   objects,
		taskQueue: taskQueue,
		db:        db,
		queueHost: queueHost,
	}

	var handler http.Handler = s.router
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes(cfg.AuthSecret)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(authSecret string) {
	auth := NewAuthMiddleware(authSecret)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Presigned object retrieval (signature is the auth)
	s.router.HandleFunc("GET /objects/{key...}", s.handleGetObject)

	// Run endpoints
	s.router.Handle("POST /api/v1/runs",
		auth.Authenticate(http.HandlerFunc(s.handleConfirmUpload)))
	s.router.Handle("GET /api/v1/runs/{id}",
		auth.Authenticate(http.HandlerFunc(s.handleGetRun)))
	s.router.Handle("GET /api/v1/runs/{id}/files",
		auth.Authenticate(http.HandlerFunc(s.handleListRunFiles)))
	s.router.Handle("POST /api/v1/runs/{id}/process",
		auth.Authenticate(http.HandlerFunc(s.handleProcessBatch)))
	s.router.Handle("POST /api/v1/runs/{id}/retry",
		auth.Authenticate(http.HandlerFunc(s.handleRetryRun)))

	// Edition endpoints
	s.router.Handle("GET /api/v1/editions/{id}/runs",
		auth.Authenticate(http.HandlerFunc(s.handleListEditionRuns)))

	// Document endpoints
	s.router.Handle("GET /api/v1/documents/{id}",
		auth.Authenticate(http.HandlerFunc(s.handleGetDocument)))
	s.router.Handle("GET /api/v1/documents/{id}/nodes",
		auth.Authenticate(http.HandlerFunc(s.handleGetDocumentNodes)))

	// Asset presign endpoint
	s.router.Handle("POST /api/v1/objects/presign",
		auth.Authenticate(http.HandlerFunc(s.handlePresignObject)))

	// Queue stats (operational)
	s.router.Handle("GET /api/v1/admin/queue",
		auth.Authenticate(http.HandlerFunc(s.handleQueueStats)))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	s.logger.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
