package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Config    *config.Config
	Model     StatusProvider
	Generator Generator
	Streamer  Streamer
	CacheSize func() int
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// NewRouter constructs the HTTP router with middleware and routes.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(deps.Logger))
	r.Use(CORSMiddleware)
	if deps.Config.Auth.APIKey != "" {
		r.Use(AuthMiddleware(deps.Config.Auth.APIKey))
	}
	r.Use(middleware.Recoverer)

	h := NewHandler(deps)

	r.Get("/health", h.HandleHealth)
	r.Get("/metrics", h.HandleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(ReadyMiddleware(deps.Model))
		r.Post("/generate", h.HandleGenerate)
		r.Post("/generate-stream", h.HandleGenerateStream)
	})

	return r
}
