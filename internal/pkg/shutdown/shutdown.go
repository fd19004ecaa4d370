// Package shutdown runs registered cleanup handlers when the process is asked
// to stop. Handlers run one at a time in reverse registration order so that
// consumers stop before the connections they use are closed.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clipforge/internal/pkg/logger"
)

// Manager handles graceful shutdown of services.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
	err      error

	ctx    context.Context
	cancel context.CancelFunc
}

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager. A zero timeout means 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log,
		timeout: timeout,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a cleanup handler that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Context is canceled as soon as shutdown starts, before any handler runs.
// Long-running loops (HTTP serve, queue consumers) should select on it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP, then runs Shutdown.
func (m *Manager) Wait() error {
	return m.WaitWithContext(context.Background())
}

// WaitWithContext is Wait that also returns early when ctx ends.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	case <-m.ctx.Done():
	}

	return m.Shutdown()
}

// Shutdown runs all cleanup handlers once. Later calls return the first
// result. Handler errors are joined; a blown deadline is reported too.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.cancel()
		m.err = m.run()
		close(m.done)
	})
	return m.err
}

func (m *Manager) run() error {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped, shutdown deadline exceeded", h.Name))
			continue
		}

		start := time.Now()
		result := make(chan error, 1)
		go func() { result <- h.Cleanup(ctx) }()

		var err error
		select {
		case err = <-result:
		case <-ctx.Done():
			err = ctx.Err()
		}

		if err != nil {
			m.log.Error("shutdown handler failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		m.log.Debug("shutdown handler completed",
			"name", h.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if len(errs) > 0 {
		m.log.Warn("graceful shutdown finished with errors", "errors", len(errs))
		return errors.Join(errs...)
	}
	m.log.Info("graceful shutdown completed")
	return nil
}

// Done is closed after Shutdown has run every handler.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
