// Package api exposes the reconciliation services over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang-reconciliation-engine/internal/api/handlers"
	"golang-reconciliation-engine/internal/api/middleware"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Config holds API server configuration.
type Config struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RequestsPerSecond and Burst size the shared rate limiter. Zero
	// RequestsPerSecond disables limiting.
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns defaults for a local server.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		AllowedOrigins:    []string{"http://localhost:3000"},
		RequestsPerSecond: 10,
		Burst:             30,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Validate checks the server settings
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "server.port", c.Port, nil)
	}
	if c.RequestsPerSecond < 0 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "server.requests_per_second", c.RequestsPerSecond, nil)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "server.burst", c.Burst, nil).
			WithSuggestion("burst must be positive when rate limiting is enabled")
	}
	return nil
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     logger.Logger
	reconciler handlers.Reconciler
	alerts     handlers.AlertService
}

// NewServer creates a new API server.
func NewServer(cfg Config, rec handlers.Reconciler, alerts handlers.AlertService) *Server {
	s := &Server{
		config:     cfg,
		router:     chi.NewRouter(),
		logger:     logger.GetGlobalLogger().WithComponent("api"),
		reconciler: rec,
		alerts:     alerts,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
	}))
	if s.config.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)
		s.router.Use(middleware.RateLimit(limiter, s.logger))
	}
}

func (s *Server) setupRoutes() {
	// Health check (no /api prefix, for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		rec := handlers.NewReconciliationHandler(s.reconciler)
		r.Get("/transactions/{id}/suggestions", rec.Suggestions)
		r.Post("/transactions/{id}/confirm", rec.Confirm)
		r.Post("/transactions/{id}/reject", rec.Reject)
		r.Delete("/matches/{id}", rec.Undo)
		r.Post("/clients/{clientID}/reconcile", rec.Reconcile)
		r.Get("/clients/{clientID}/matches", rec.ListMatches)
		r.Get("/clients/{clientID}/patterns", rec.ListPatterns)

		alerts := handlers.NewAlertsHandler(s.alerts)
		r.Post("/clients/{clientID}/detect", alerts.Detect)
		r.Get("/clients/{clientID}/alerts", alerts.List)
		r.Patch("/alerts/{id}", alerts.Update)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.httpServer.Addr
	s.logger.WithField("addr", addr).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return apperrors.InternalError("serve", err).WithContext("addr", addr)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
