package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/easygenie/orchestrator/internal/api/handlers"
	"github.com/easygenie/orchestrator/internal/api/middleware"
	"github.com/easygenie/orchestrator/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/healthz", healthHandler)
	r.Get("/readyz", h.Ready)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/v1", func(r chi.Router) {
		// Pipeline
		r.Post("/process", h.Process)
		r.Post("/request", h.Request)
		r.Post("/analyze-text", h.AnalyzeText)
		r.Post("/break-down-task", h.BreakDownTask)
		r.Post("/optimize-routine", h.OptimizeRoutine)

		// Introspection
		r.Get("/status", h.Status)
		r.Get("/metrics", h.Metrics)
		r.Delete("/cache", h.ClearCache)

		// Learning
		r.Get("/recommendations/{tool}", h.Recommendations)
		r.Get("/patterns", h.Patterns)

		// Capability registry
		r.Get("/capabilities", h.Capabilities)

		// Per-user context and preferences
		r.Route("/preferences/{user}", func(r chi.Router) {
			r.Get("/", h.GetPreferences)
			r.Put("/", h.SetPreferences)
		})
		r.Route("/context", func(r chi.Router) {
			r.Post("/", h.AddContext)
			r.Post("/query", h.QueryContext)
			r.Delete("/sessions/{session}", h.EndSession)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "easygenie-orchestrator",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "easygenie-orchestrator",
		})
	}
}
