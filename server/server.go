// Package server runs the HTTP surface with signal-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lunarbank/funds/log"
)

// ErrNoServerConfigured indicates the manager has nothing to run.
var ErrNoServerConfigured = errors.New("no server configured: use WithHTTPServer()")

// Closer is a shutdown hook drained after the HTTP server stops accepting
// requests. Hooks run in registration order.
type Closer func(ctx context.Context) error

// Manager starts the HTTP server and coordinates graceful shutdown on
// SIGINT/SIGTERM, on startup failure, or on a test-provided channel.
type Manager struct {
	httpServer      *fiber.App
	httpAddress     string
	logger          log.Logger
	closers         []namedCloser
	serverStarted   chan struct{}
	startedOnce     sync.Once
	shutdownChan    <-chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	startupErrors   chan error
}

type namedCloser struct {
	name  string
	close Closer
}

// NewManager creates a Manager. A nil logger is replaced with a nop logger.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Manager{
		logger:          logger,
		serverStarted:   make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startupErrors:   make(chan error, 1),
	}
}

// WithHTTPServer configures the fiber app and its listen address.
func (m *Manager) WithHTTPServer(app *fiber.App, address string) *Manager {
	m.httpServer = app
	m.httpAddress = address

	return m
}

// WithCloser registers a shutdown hook. Hooks run after the HTTP server has
// stopped, in registration order, each bounded by the shutdown timeout.
func (m *Manager) WithCloser(name string, closer Closer) *Manager {
	m.closers = append(m.closers, namedCloser{name: name, close: closer})

	return m
}

// WithShutdownChannel configures a custom shutdown trigger. This lets tests
// drive shutdown deterministically instead of relying on OS signals.
func (m *Manager) WithShutdownChannel(ch <-chan struct{}) *Manager {
	m.shutdownChan = ch

	return m
}

// WithShutdownTimeout bounds each shutdown hook. Defaults to 30 seconds.
func (m *Manager) WithShutdownTimeout(d time.Duration) *Manager {
	m.shutdownTimeout = d

	return m
}

// ServerStarted returns a channel closed once the server goroutine has been
// launched. It signals launch, not that the socket is bound.
func (m *Manager) ServerStarted() <-chan struct{} {
	return m.serverStarted
}

// Run starts the server and blocks until shutdown completes. It returns
// ErrNoServerConfigured when no server was set.
func (m *Manager) Run() error {
	if m.httpServer == nil {
		return ErrNoServerConfigured
	}

	go func() {
		m.logger.Log(context.Background(), log.LevelInfo, "starting HTTP server",
			log.String("address", m.httpAddress))

		if err := m.httpServer.Listen(m.httpAddress); err != nil {
			m.logger.Log(context.Background(), log.LevelError, "HTTP server error", log.Err(err))

			select {
			case m.startupErrors <- fmt.Errorf("http server: %w", err):
			default:
			}
		}
	}()

	m.startedOnce.Do(func() {
		close(m.serverStarted)
	})

	m.waitForShutdown()
	m.executeShutdown()

	return nil
}

// waitForShutdown blocks until a termination signal arrives, the shutdown
// channel closes, or the server fails to start.
func (m *Manager) waitForShutdown() {
	if m.shutdownChan != nil {
		select {
		case <-m.shutdownChan:
		case err := <-m.startupErrors:
			m.logger.Log(context.Background(), log.LevelError, "server startup failed", log.Err(err))
		}

		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
		signal.Stop(c)
	case err := <-m.startupErrors:
		m.logger.Log(context.Background(), log.LevelError, "server startup failed", log.Err(err))
	}
}

// executeShutdown stops the HTTP server, drains the shutdown hooks, and
// syncs the logger. Idempotent: only the first call runs the sequence.
func (m *Manager) executeShutdown() {
	m.shutdownOnce.Do(func() {
		ctx := context.Background()

		m.logger.Log(ctx, log.LevelInfo, "gracefully shutting down")

		if err := m.httpServer.ShutdownWithTimeout(m.shutdownTimeout); err != nil {
			m.logger.Log(ctx, log.LevelError, "HTTP server shutdown error", log.Err(err))
		}

		for _, c := range m.closers {
			closeCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)

			if err := c.close(closeCtx); err != nil {
				m.logger.Log(ctx, log.LevelError, "shutdown hook failed",
					log.String("hook", c.name), log.Err(err))
			}

			cancel()
		}

		if err := m.logger.Sync(ctx); err != nil {
			m.logger.Log(ctx, log.LevelError, "failed to sync logger", log.Err(err))
		}

		m.logger.Log(ctx, log.LevelInfo, "graceful shutdown completed")
	})
}
