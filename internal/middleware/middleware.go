// Package middleware holds the request pipeline shared by the backend and the
// gateway: request ids, rate limiting, access logging and panic recovery.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/portal/internal/respond"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Option configures the behaviour of Stack.
type Option func(*stackConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) Option {
	return func(cfg *stackConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter Limiter) Option {
	return func(cfg *stackConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit installs a token bucket limiter. Zero values disable rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *stackConfig) {
		if rps <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = NewTokenBucketLimiter(rps, burst)
	}
}

// WithCORS installs h directly after request id assignment, outside the rate
// limiter and recovery, so rejected and failed responses still carry CORS headers.
func WithCORS(h func(http.Handler) http.Handler) Option {
	return func(cfg *stackConfig) {
		cfg.cors = h
	}
}

type stackConfig struct {
	enableLogging bool
	rateLimiter   Limiter
	cors          func(http.Handler) http.Handler
}

// Stack returns the standard middleware in the order they must wrap a router:
// request id, CORS (when set), rate limit, access log, recovery.
func Stack(logger *zap.Logger, opts ...Option) []func(http.Handler) http.Handler {
	cfg := stackConfig{
		enableLogging: true,
		rateLimiter:   NewTokenBucketLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	stack := []func(http.Handler) http.Handler{RequestID}
	if cfg.cors != nil {
		stack = append(stack, cfg.cors)
	}
	if cfg.rateLimiter != nil {
		limiter := cfg.rateLimiter
		stack = append(stack, func(next http.Handler) http.Handler {
			return RateLimit(limiter, next)
		})
	}
	if cfg.enableLogging {
		stack = append(stack, func(next http.Handler) http.Handler {
			return Logging(logger, next)
		})
	}
	stack = append(stack, func(next http.Handler) http.Handler {
		return Recovery(logger, next)
	})
	return stack
}

// Logging emits one access log line per request.
func Logging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestID := RequestIDFromContext(r.Context())
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("request_id", requestID),
		)
	})
}

// Recovery turns a panic into a 500 response.
func Recovery(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", RequestIDFromContext(r.Context())))
				respond.Error(w, http.StatusInternalServerError, "Internal error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := ContextWithRequestID(r.Context(), requestID)

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithRequestID stores id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the id stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
