package gateway

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
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

// WithStaticDir serves frontend assets from dir for every non-API path.
func WithStaticDir(dir string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.staticDir = dir
	}
}

// WithRouterMetrics records request metrics and serves them on /metrics.
func WithRouterMetrics(m *metrics.HTTP) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

type routerConfig struct {
	middleware []middleware.Option
	staticDir  string
	metrics    *metrics.HTTP
}

// NewRouter builds the gateway's root handler: /api traffic goes to the
// backend, /healthz and /metrics are answered locally and everything else is
// served from the static directory when one is configured.
func NewRouter(gw *Gateway, logger *zap.Logger, opts ...RouterOption) (http.Handler, error) {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.Stack(logger, cfg.middleware...)...)
	if cfg.metrics != nil {
		r.Use(cfg.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"backend":   gw.Rule().String(),
			"timestamp": time.Now().UTC(),
		})
	})

	r.Handle(APIPrefix, gw)
	r.Handle(APIPrefix+"/*", gw)

	if cfg.staticDir == "" {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			respond.Error(w, http.StatusNotFound, "Not found", "no route matches the request path")
		})
		return r, nil
	}

	staticPath, err := resolveProjectPath(cfg.staticDir)
	if err != nil {
		return nil, err
	}
	r.Handle("/*", http.FileServer(http.Dir(staticPath)))
	logger.Info("serving static assets", zap.String("dir", staticPath))

	return r, nil
}

// resolveProjectPath locates a file or directory. Absolute paths are checked
// as given; relative ones are searched for by walking up from the working directory.
func resolveProjectPath(relative string) (string, error) {
	if filepath.IsAbs(relative) {
		if _, err := os.Stat(relative); err != nil {
			return "", fmt.Errorf("unable to locate %s: %w", relative, err)
		}
		return relative, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
