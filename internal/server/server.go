package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/internal/session"
	"github.com/me/tdist/internal/store"
)

// Server is the tdist controller's REST API: workers register, report their
// collection, poll for work, and report completions; clients query run
// status and history.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	session   *session.Session
	store     store.Store
	metrics   *Metrics
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, sess *session.Session, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		session:   sess,
		store:     st,
		metrics:   NewMetrics(sess),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Worker API
		r.Post("/nodes", s.handleRegister)
		r.Get("/nodes", s.handleListNodes)
		r.Post("/nodes/{nodeID}/collection", s.handleCollection)
		r.Get("/nodes/{nodeID}/work", s.handlePoll)
		r.Post("/nodes/{nodeID}/complete", s.handleComplete)

		// Client API
		r.Get("/run", s.handleRunStatus)
		r.Get("/run/results", s.handleRunResults)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	})
}
