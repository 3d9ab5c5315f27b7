// Package shutdown runs registered cleanup hooks when the process exits.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
)

// Hook is a cleanup function run at shutdown.
type Hook func(context.Context) error

type entry struct {
	id   int
	name string
	fn   Hook
}

// Manager holds shutdown hooks. Hooks run once, in reverse registration order.
type Manager struct {
	mu      sync.Mutex
	hooks   []entry
	nextID  int
	timeout time.Duration
	logger  logging.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// New creates a manager that gives all hooks together at most timeout to run.
func New(timeout time.Duration, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger.WithComponent("shutdown"),
		done:    make(chan struct{}),
	}
}

// Register adds a hook and returns an id for Unregister.
func (m *Manager) Register(name string, fn Hook) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.hooks = append(m.hooks, entry{id: m.nextID, name: name, fn: fn})
	return m.nextID
}

// Unregister removes a hook. Unknown ids are ignored.
func (m *Manager) Unregister(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, h := range m.hooks {
		if h.id == id {
			m.hooks = append(m.hooks[:i], m.hooks[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered hooks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}

// Done is closed once Shutdown has started.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs every hook (LIFO). Errors are logged, not returned. Calls
// after the first are no-ops.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		close(m.done)

		// Hooks may Unregister themselves, so run them without the lock.
		m.mu.Lock()
		hooks := append([]entry(nil), m.hooks...)
		m.hooks = nil
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(ctx); err != nil {
				m.logger.Warn(ctx, err, "Shutdown hook failed", "hook", h.name)
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
				continue
			}
			m.logger.Debug(ctx, "Shutdown hook completed", "hook", h.name)
		}

		m.mu.Lock()
		m.err = errors.CombineErrors(errs...)
		m.mu.Unlock()
	})
}

// Err returns the hook failures of the finished Shutdown, nil when every
// hook succeeded or Shutdown has not run.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx is done, then runs
// Shutdown. It returns ctx.Err() when the context ended the wait.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info(ctx, "Received signal, shutting down", "signal", sig.String())
		m.Shutdown()
		return nil
	case <-ctx.Done():
		m.Shutdown()
		return ctx.Err()
	}
}

// StopHTTPServer adapts an http.Server (or anything with Shutdown) to a Hook.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) Hook {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}
