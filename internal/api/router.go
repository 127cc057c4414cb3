package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/eugenenazirov/portal/internal/metrics"
	"github.com/eugenenazirov/portal/internal/middleware"
	"github.com/eugenenazirov/portal/internal/respond"
)

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithMiddleware forwards options to the shared middleware stack.
func WithMiddleware(opts ...middleware.Option) RouterOption {
	return func(cfg *routerConfig) {
		cfg.middleware = append(cfg.middleware, opts...)
	}
}

// WithAllowedOrigins sets the origins allowed to make credentialed requests.
func WithAllowedOrigins(origins ...string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.allowedOrigins = origins
	}
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.HTTP) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

type routerConfig struct {
	middleware     []middleware.Option
	allowedOrigins []string
	metrics        *metrics.HTTP
}

// CORSOptions returns the CORS policy for the given origins: credentials are
// allowed, so the origin list is always explicit.
func CORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// NewRouter creates the backend HTTP router with standard middleware, CORS
// and session loading.
func NewRouter(handler *Handler, logger *zap.Logger, opts ...RouterOption) http.Handler {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stackOpts := append(cfg.middleware, middleware.WithCORS(cors.Handler(CORSOptions(cfg.allowedOrigins))))

	r := chi.NewRouter()
	r.Use(middleware.Stack(logger, stackOpts...)...)
	if cfg.metrics != nil {
		r.Use(cfg.metrics.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "Not found", "no route matches the request path")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "the route does not support this method")
	})

	r.Get("/health", handler.handleHealth)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(handler.sessions.Middleware)
		r.Get("/session", handler.handleGetSession)
		r.Put("/session", handler.handlePutSession)
		r.Delete("/session", handler.handleDeleteSession)
	})

	return r
}
