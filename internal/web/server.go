// Package web serves the GPS form page and its JSON API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/roach88/gpsform/internal/engine"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/reconcile"
	"github.com/roach88/gpsform/internal/record"
)

// Engine is the subset of engine.Engine the handlers call.
type Engine interface {
	Submit(ctx context.Context) (form.Result, error)
	Capture(ctx context.Context, loc *geo.Location) (geo.Location, error)
	SetOnline(ctx context.Context, online bool) (reconcile.Report, bool, error)
	Sync(ctx context.Context) (reconcile.Report, error)
	Status(ctx context.Context) (engine.Status, error)
	Pending(ctx context.Context) ([]record.FormRecord, error)
}

// ServerOption configures the web server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	tracing     bool
	metrics     bool
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithTracing wraps the router with OpenTelemetry server instrumentation
func WithTracing(enabled bool) ServerOption {
	return func(cfg *serverConfig) {
		cfg.tracing = enabled
	}
}

// WithMetrics exposes the Prometheus registry at /metrics. Default: enabled.
func WithMetrics(enabled bool) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = enabled
	}
}

// NewServer creates the HTTP handler for the form page and API.
func NewServer(eng Engine, opts ...ServerOption) http.Handler {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
		metrics:     true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	h := &handlers{engine: eng}

	r.Get("/", h.page)
	r.Post("/capture", h.captureForm)
	r.Post("/submit", h.submitForm)

	r.Route("/api", func(r chi.Router) {
		r.Post("/coordinates", h.postCoordinates)
		r.Post("/submit", h.postSubmit)
		r.Get("/status", h.getStatus)
		r.Get("/pending", h.getPending)
		r.Post("/sync", h.postSync)
		r.Post("/connectivity", h.postConnectivity)
	})

	r.Get("/healthz", healthz)
	if cfg.metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	if cfg.tracing {
		return otelhttp.NewHandler(r, "gpsform",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}),
		)
	}
	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
