// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/remiblancher/certwizard/internal/api/handler"
	"github.com/remiblancher/certwizard/internal/api/middleware"
	"github.com/remiblancher/certwizard/internal/api/service"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version  string
	Sessions *service.SessionService
	Logger   zerolog.Logger
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS)

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Sessions)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	algorithmHandler := handler.NewAlgorithmHandler(cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions)

	r.Route("/api/v1", func(r chi.Router) {
		// Capability registry
		r.Route("/algorithms", func(r chi.Router) {
			r.Get("/", algorithmHandler.List)
			r.Get("/{name}", algorithmHandler.Get)
		})

		// Stand-alone extension validation
		r.Post("/extensions/validate", algorithmHandler.ValidateExtension)

		// Request sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Post("/draft", sessionHandler.ResumeDraft)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Cancel)

				r.Put("/issuer", sessionHandler.SetIssuer)
				r.Put("/subject", sessionHandler.SetSubject)
				r.Put("/dates", sessionHandler.SetDates)

				r.Post("/extensions", sessionHandler.AddExtension)
				r.Put("/extensions/{index}", sessionHandler.EditExtension)
				r.Delete("/extensions/{index}", sessionHandler.RemoveExtension)

				r.Post("/advance", sessionHandler.Advance)
				r.Post("/retreat", sessionHandler.Retreat)
				r.Post("/finish", sessionHandler.Finish)
				r.Post("/cancel", sessionHandler.Cancel)

				r.Get("/events", sessionHandler.Events)
				r.Get("/draft", sessionHandler.SaveDraft)
			})
		})
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
