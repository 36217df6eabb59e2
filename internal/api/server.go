package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rm2thaddeus/devgraph/internal/analytics"
	"github.com/rm2thaddeus/devgraph/internal/cache"
	"github.com/rm2thaddeus/devgraph/internal/config"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/ingest"
	"github.com/rm2thaddeus/devgraph/internal/query"
	"github.com/rm2thaddeus/devgraph/internal/storage"
)

// Ingestor triggers pipeline runs. *ingest.Orchestrator satisfies it;
// tests substitute a stub so handlers are testable without a repository.
type Ingestor interface {
	Bootstrap(ctx context.Context, trigger string) (*ingest.PipelineResult, error)
	IngestRecent(ctx context.Context, limit int, trigger string) (*ingest.PipelineResult, error)
}

// Deps bundles the services the HTTP layer exposes. Store and Cache may
// be nil; the health endpoint reports them as disabled.
type Deps struct {
	Ingestor  Ingestor
	Queries   *query.Service
	Analytics *analytics.Service
	Backend   graph.Backend
	Store     storage.Store
	Cache     *cache.Client
	Version   string
}

// Server is the HTTP API over the temporal graph
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	cfg     *config.Config
	logger  *slog.Logger
	version string

	ingestor  Ingestor
	queries   *query.Service
	analytics *analytics.Service
	backend   graph.Backend
	store     storage.Store
	redis     *cache.Client

	// ingestLimiter absorbs trigger storms; ingestSlot rejects a second
	// run while one is in flight
	ingestLimiter *rate.Limiter
	ingestSlot    chan struct{}
}

// NewServer wires routes, middleware, and the ingestion rate limiter
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	// IngestRate <= 0 disables the token bucket entirely
	limit := rate.Limit(cfg.Server.IngestRate)
	if cfg.Server.IngestRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Server.IngestBurst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		router:        http.NewServeMux(),
		cfg:           cfg,
		logger:        logger.With("component", "api"),
		version:       version,
		ingestor:      deps.Ingestor,
		queries:       deps.Queries,
		analytics:     deps.Analytics,
		backend:       deps.Backend,
		store:         deps.Store,
		redis:         deps.Cache,
		ingestLimiter: rate.NewLimiter(limit, burst),
		ingestSlot:    make(chan struct{}, 1),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:        cfg.ServerAddr(),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: a bootstrap run legitimately holds the
		// response open for minutes. The pipeline context carries the
		// configured ingestion timeout instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start serves requests until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the router; the last wrap runs first
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware(s.cfg.Server.CORSOrigins)(handler)
	return handler
}
