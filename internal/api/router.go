package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter creates a chi router and registers the API handlers.
func NewRouter(deps Dependencies) http.Handler {
	h := NewHandlers(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/check-url", h.CheckURL)

		r.Group(func(r chi.Router) {
			r.Use(h.requireCronSecret)
			r.Get("/cron/check-urls", h.TriggerChecks)
			r.Post("/cron/check-urls", h.TriggerChecks)
		})

		r.Route("/monitors/{id}", func(r chi.Router) {
			r.Get("/", h.GetMonitor)
			r.Get("/stats", h.GetStats)
			r.Post("/check", h.CheckMonitor)
		})
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
