package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

type RouterConfig struct {
	// Admin guards the write endpoints.
	Admin func(http.Handler) http.Handler
	// Auth is nil when no OAuth provider is configured.
	Auth *AuthHandler
	// RateLimit is requests per minute per client on admin endpoints.
	RateLimit int
	// Health backs GET /healthz when set.
	Health func(ctx context.Context) error
	Log    *zap.Logger
}

func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := cfg.Health(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	if cfg.Auth != nil {
		r.Get("/auth/{provider}", cfg.Auth.Begin)
		r.Get("/auth/{provider}/callback", cfg.Auth.Callback)
		r.Post("/logout/{provider}", cfg.Auth.Logout)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", h.ListImages)
		r.Get("/images/{id}", h.GetImage)
		r.Get("/random", h.RandomImage)
		r.Get("/tags", h.ListTags)

		r.Group(func(r chi.Router) {
			if cfg.Admin != nil {
				r.Use(cfg.Admin)
			}
			if cfg.RateLimit > 0 {
				r.Use(httprate.Limit(
					cfg.RateLimit,
					1*time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
				))
			}

			if cfg.Auth != nil {
				r.Get("/me", cfg.Auth.Me)
			}
			r.Post("/upload", h.UploadImage)
			r.Patch("/images/{id}", h.UpdateImage)
			r.Delete("/images/{id}", h.DeleteImage)
			r.Post("/tags", h.CreateTag)
			r.Post("/tags/batch", h.BatchUpdateTags)
			r.Put("/tags/{name}", h.RenameTag)
			r.Delete("/tags/{name}", h.DeleteTag)
		})
	})

	return r
}

// RequestLogger logs one line per request through log.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
