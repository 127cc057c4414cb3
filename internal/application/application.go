package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/eugenenazirov/portal/internal/api"
	"github.com/eugenenazirov/portal/internal/config"
	"github.com/eugenenazirov/portal/internal/gateway"
	"github.com/eugenenazirov/portal/internal/metrics"
	"github.com/eugenenazirov/portal/internal/middleware"
	"github.com/eugenenazirov/portal/internal/session"
)

// App encapsulates a configured HTTP server and its lifecycle.
type App struct {
	name     string
	handler  http.Handler
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
	started  func(port int)
}

// New initializes the backend from the provided configuration: signed cookie
// sessions, a CORS policy allowing cfg.FrontendURL with credentials, and the
// session API.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	sessions, err := session.NewManager(session.Options{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure sessions: %w", err)
	}

	for _, name := range cfg.Defaulted {
		logger.Warn("required setting missing, using default", zap.String("variable", name))
	}

	handler := api.NewHandler(sessions)
	router := api.NewRouter(handler, logger,
		api.WithMiddleware(
			middleware.WithLogging(cfg.EnableRequestLogging),
			middleware.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		),
		api.WithAllowedOrigins(cfg.FrontendURL),
		api.WithMetrics(metrics.NewHTTP("backend")),
	)

	return &App{
		name:    "backend",
		handler: router,
		logger:  logger,
		server:  NewServer(cfg.ServerConfig, router),
		started: func(port int) {
			logger.Info("backend running", zap.Int("port", port), zap.String("env", cfg.Environment))
			logger.Info("cors enabled", zap.String("origin", cfg.FrontendURL))
		},
	}, nil
}

// NewGateway initializes the frontend gateway that forwards /api/:path* to
// cfg.BackendURL and optionally serves static assets.
func NewGateway(cfg config.GatewayConfig, logger *zap.Logger) (*App, error) {
	m := metrics.NewHTTP("gateway")
	gw, err := gateway.New(cfg.BackendURL, logger, gateway.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to configure gateway: %w", err)
	}

	opts := []gateway.RouterOption{
		gateway.WithMiddleware(
			middleware.WithLogging(cfg.EnableRequestLogging),
			middleware.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		),
		gateway.WithRouterMetrics(m),
	}
	if cfg.StaticDir != "" {
		opts = append(opts, gateway.WithStaticDir(cfg.StaticDir))
	}
	router, err := gateway.NewRouter(gw, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		name:    "gateway",
		handler: router,
		logger:  logger,
		server:  NewServer(cfg.ServerConfig, router),
		started: func(port int) {
			logger.Info("gateway running", zap.Int("port", port), zap.String("rewrite", gw.Rule().String()))
		},
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start binds the listener and serves in a goroutine. Bind failures are
// returned before any request is served.
func (a *App) Start() error {
	if a.listener != nil {
		return fmt.Errorf("%s already started", a.name)
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	port := 0
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	if a.started != nil {
		a.started(port)
	}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", zap.String("app", a.name), zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
