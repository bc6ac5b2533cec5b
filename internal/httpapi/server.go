// Package httpapi exposes the import engine over HTTP with chi.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/logging"
	"github.com/roach88/basicio/internal/store"
)

// DefaultMaxBodyBytes caps request bodies when Options leave it unset.
const DefaultMaxBodyBytes = 32 << 20

// RunLog reads saved import reports. *store.Store implements it.
type RunLog interface {
	LoadReport(ctx context.Context, batchID string) (*ir.Report, error)
	ListReports(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// Options configures a Server.
type Options struct {
	// Defaults is the policy matrix used when a request does not override it.
	Defaults ir.BatchConfig

	// Profile applies to every import and export. May be nil.
	Profile *ir.Profile

	// TreeField is the default parent field for tree imports. The
	// tree_field query parameter overrides it; an empty value disables it.
	TreeField string

	// MaxBodyBytes caps request bodies; larger bodies get 413.
	MaxBodyBytes int64

	// Runs serves the report endpoints. May be nil, which disables them.
	Runs RunLog
}

// Server is the HTTP front end of one Engine.
type Server struct {
	engine   *engine.Engine
	exporter *engine.Exporter
	opts     Options
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server. exporter may be nil, which disables export.
func NewServer(eng *engine.Engine, exporter *engine.Exporter, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		engine:   eng,
		exporter: exporter,
		opts:     opts,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/import", s.handleImport)
		r.Post("/validate", s.handleValidate)
		r.Get("/export/{resourceType}", s.handleExport)
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{batchID}", s.handleGetReport)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("http server listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight imports.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with chi's request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
