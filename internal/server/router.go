package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atedays1/ate-days-homebase-sub000/internal/api"
	"github.com/atedays1/ate-days-homebase-sub000/internal/api/handlers"
	"github.com/atedays1/ate-days-homebase-sub000/internal/api/middleware"
)

const (
	maxJSONBodyBytes int64 = 1 << 20
	// multipart framing on top of the document itself
	uploadOverheadBytes int64 = 1 << 20
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	ContextHandler  *handlers.ContextHandler
	MaxUploadBytes  int64
	// HealthCheck reports store reachability; nil always reports ok.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				api.Error(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(uploadLimit(cfg.MaxUploadBytes))).Post("/", cfg.DocumentHandler.Upload)
		r.Get("/", cfg.DocumentHandler.List)
		r.Get("/{id}", cfg.DocumentHandler.Get)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(maxJSONBodyBytes))
		r.Post("/search", cfg.ContextHandler.Search)
		r.Post("/context", cfg.ContextHandler.Context)
	})

	return r
}

func uploadLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 0
	}
	return maxUpload + uploadOverheadBytes
}
