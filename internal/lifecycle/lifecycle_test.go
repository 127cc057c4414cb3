package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestWaitAndShutdownOnSignal(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})

	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		go func() {
			ch <- syscall.SIGTERM
		}()
	}

	server := &http.Server{}
	called := make(chan struct{}, 1)
	server.RegisterOnShutdown(func() {
		called <- struct{}{}
	})

	WaitAndShutdown(server, time.Millisecond, zaptest.NewLogger(t))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatalf("expected server shutdown callback to execute")
	}
}

type stuckServer struct {
	closed bool
}

func (s *stuckServer) Shutdown(context.Context) error { return context.DeadlineExceeded }

func (s *stuckServer) Close() error {
	s.closed = true
	return nil
}

func TestWaitAndShutdownForcesCloseAfterTimeout(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})
	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		ch <- syscall.SIGINT
	}

	server := &stuckServer{}
	WaitAndShutdown(server, time.Millisecond, zaptest.NewLogger(t))

	if !server.closed {
		t.Fatalf("expected forced close after failed graceful shutdown")
	}
}

func TestFailExitsWithStatusOne(t *testing.T) {
	t.Cleanup(func() {
		osExit = os.Exit
	})

	code := -1
	osExit = func(c int) { code = c }

	Fail(zaptest.NewLogger(t), "failed to load configuration", errors.New("boom"))
	if code != 1 {
		t.Fatalf("expected exit status 1, got %d", code)
	}
}

func TestResolveEnvironmentPrefersLoadedConfig(t *testing.T) {
	t.Setenv("NODE_ENV", "development")

	if got := resolveEnvironment("production"); got != "production" {
		t.Fatalf("expected resolved environment to win, got %q", got)
	}
	if got := resolveEnvironment(""); got != "development" {
		t.Fatalf("expected NODE_ENV fallback, got %q", got)
	}
}

func TestNewLoggerBuildsForEnvironment(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		logger, err := NewLogger(env)
		if err != nil {
			t.Fatalf("NewLogger(%q) returned error: %v", env, err)
		}
		_ = logger.Sync()
	}
}
