// Package httpapi exposes an Index over HTTP with JSON requests and
// responses.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/search"
)

// Index is the part of *semindex.Index the API serves.
type Index interface {
	Status() semindex.StatusSnapshot
	SemanticSearch(ctx context.Context, query string, opts ...search.Option) ([]*core.SearchResult, error)
	SearchWithinJob(ctx context.Context, query, jobID string, opts ...search.Option) ([]*core.SearchResult, error)
	FindSimilarJobs(ctx context.Context, jobID string, limit int) ([]*core.SearchResult, error)
	DeleteJob(ctx context.Context, jobID string) error
	DeleteEntity(ctx context.Context, entityType core.EntityType, entityID string) error
}

var _ Index = (*semindex.Index)(nil)

// Server is the HTTP API server.
type Server struct {
	index          Index
	router         chi.Router
	httpServer     *http.Server
	logger         *slog.Logger
	addr           string
	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout bounds each request.
// Default is 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates a server for index listening on addr.
func NewServer(index Index, addr string, opts ...Option) *Server {
	s := &Server{
		index:          index,
		addr:           addr,
		logger:         slog.Default(),
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(logging(s.logger))
	router.Use(chimiddleware.Timeout(s.requestTimeout))

	router.Get("/health", s.health)
	router.Get("/status", s.status)
	router.Post("/search", s.search)
	router.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/similar", s.similarJobs)
		r.Post("/search", s.searchJob)
		r.Delete("/", s.deleteJob)
	})
	router.Delete("/entities/{type}/{id}", s.deleteEntity)

	s.router = router
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug("request completed",
					"request_id", chimiddleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
