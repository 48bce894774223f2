package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds API router configuration
type Config struct {
	Organization string
	Projects     ProjectSource
	Sync         SyncStatus
	Logger       *slog.Logger
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Base middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	handlers := NewHandlers(cfg.Organization, cfg.Projects, cfg.Sync, cfg.Logger)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		// Health endpoints
		r.Get("/health", handlers.Health)
		r.Get("/ping", handlers.Ping)
		r.Get("/version", handlers.Version)

		// Projects
		r.Get("/projects", handlers.ListProjects)
		r.Get("/projects/{project}", handlers.GetProject)

		// Pages
		r.Get("/docs", handlers.GetPage)
		r.Get("/docs/*", handlers.GetPage)
	})

	return r
}
