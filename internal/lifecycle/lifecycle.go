// Package lifecycle holds the process plumbing shared by the backend and
// gateway binaries: logger selection, fatal startup errors and signal-driven
// graceful shutdown.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/portal/internal/config"
	"github.com/eugenenazirov/portal/internal/logging"
)

var (
	signalNotify = signal.Notify
	osExit       = os.Exit
)

// Server is the part of *http.Server needed to stop it.
type Server interface {
	Shutdown(ctx context.Context) error
	Close() error
}

// NewLogger builds the process logger for the resolved environment. An empty
// environment (configuration failed to load) falls back to NODE_ENV.
func NewLogger(environment string) (*zap.Logger, error) {
	return logging.New(resolveEnvironment(environment))
}

func resolveEnvironment(environment string) string {
	if environment == "" {
		return config.Environment()
	}
	return environment
}

// Fail logs err and terminates the process with status 1.
func Fail(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	osExit(1)
}

// WaitAndShutdown blocks until SIGINT or SIGTERM, then shuts server down
// within timeout, closing it forcibly if draining fails.
func WaitAndShutdown(server Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
