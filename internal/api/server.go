// Package api exposes the evaluation pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ganga0312/sentinelstream/internal/config"
	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/metrics"
	"github.com/ganga0312/sentinelstream/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.Config, orchestrator *scoring.Orchestrator, configStore *config.Store, hist domain.HistoryStore, cache domain.Cache, bus domain.EventBus, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(orchestrator, configStore, hist, cache, bus, cfg.RulesPath, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and metrics endpoints (no API key required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	// API routes (API key required)
	router.Route("/", func(r chi.Router) {
		r.Use(APIKeyMiddleware(cfg.APIKey))

		// Transaction evaluation
		r.Post("/evaluate", handler.Evaluate)
		r.Get("/evaluate", handler.EvaluateHelp)
		r.Post("/evaluate/async", handler.EvaluateAsync)

		// Record retrieval
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Get("/outcomes/{id}", handler.GetOutcome)

		// Dashboard summary
		r.Get("/dashboard", handler.Dashboard)

		// Configuration management
		r.Get("/config", handler.GetConfig)
		r.Post("/config/reload", handler.ReloadConfig)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
