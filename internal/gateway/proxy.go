package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"

	"go.uber.org/zap"

	"github.com/eugenenazirov/portal/internal/metrics"
	"github.com/eugenenazirov/portal/internal/middleware"
	"github.com/eugenenazirov/portal/internal/respond"
	"github.com/eugenenazirov/portal/internal/rewrite"
)

const (
	// APIPrefix is the path prefix forwarded to the backend.
	APIPrefix = "/api"
	// SourcePattern matches every path under APIPrefix, including the prefix itself.
	SourcePattern = APIPrefix + "/:path*"
)

// Gateway forwards /api/:path* to <backend>/:path*.
type Gateway struct {
	rule    rewrite.Rule
	proxy   *httputil.ReverseProxy
	logger  *zap.Logger
	metrics *metrics.HTTP
}

// Option configures Gateway behaviour.
type Option func(*Gateway)

// WithTransport overrides the transport used to reach the backend.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) {
		g.proxy.Transport = rt
	}
}

// WithMetrics counts upstream failures.
func WithMetrics(m *metrics.HTTP) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New builds a gateway for backendURL, which must be an absolute http(s) URL
// without a trailing slash. A path prefix on the backend URL is kept.
func New(backendURL string, logger *zap.Logger, opts ...Option) (*Gateway, error) {
	rule, err := rewrite.Parse(SourcePattern, backendURL+"/:path*")
	if err != nil {
		return nil, fmt.Errorf("build rewrite rule: %w", err)
	}

	g := &Gateway{
		rule:   rule,
		logger: logger,
	}
	g.proxy = &httputil.ReverseProxy{
		Rewrite:      g.rewrite,
		ErrorHandler: g.handleError,
		ErrorLog:     zap.NewStdLog(logger),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Rule returns the rewrite rule the gateway applies.
func (g *Gateway) Rule() rewrite.Rule {
	return g.rule
}

// ServeHTTP proxies requests whose path matches the rule and answers 404 otherwise.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.rule.Apply(r.URL.EscapedPath()); !ok {
		respond.Error(w, http.StatusNotFound, "Not found", "path is not routed to the backend")
		return
	}
	g.proxy.ServeHTTP(w, r)
}

func (g *Gateway) rewrite(pr *httputil.ProxyRequest) {
	target, _ := g.rule.Target(pr.In.URL)
	pr.Out.URL = target
	// An empty Host makes the client send the backend's host, not the gateway's.
	pr.Out.Host = ""
	pr.SetXForwarded()

	if id := middleware.RequestIDFromContext(pr.In.Context()); id != "" {
		pr.Out.Header.Set(middleware.RequestIDHeader, id)
	}
}

func (g *Gateway) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		g.logger.Debug("client went away during proxy", zap.String("path", r.URL.Path))
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	if g.metrics != nil {
		g.metrics.UpstreamErrors.Inc()
	}
	g.logger.Warn("backend request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	respond.Error(w, http.StatusBadGateway, "Bad gateway", "backend is unavailable")
}
