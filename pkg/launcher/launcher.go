// Package launcher runs a set of protocol adapters side by side and shuts
// them down together.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/adapter"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/sourcegraph/conc"
)

// DefaultStopTimeout bounds the Stop() calls issued during shutdown.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("launcher: Serve has already been called")

// Launcher manages the lifecycle of several protocol adapters and an optional
// metrics HTTP server.
//
// Lifecycle:
//  1. Creation: New() with a stop timeout
//  2. Registration: AddAdapter() for each configured server
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation or an adapter failure stops every
//     adapter in reverse registration order
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() runs once.
//
// Example usage:
//
//	l := launcher.New(cfg.Server.ShutdownTimeout)
//	for _, a := range adapters {
//	    if err := l.AddAdapter(a); err != nil {
//	        return err
//	    }
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := l.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Launcher struct {
	adapters      []adapter.Adapter
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	// mu protects adapters and metricsServer
	mu     sync.RWMutex
	served atomic.Bool
}

// New creates an empty Launcher. A non-positive stopTimeout selects
// DefaultStopTimeout.
func New(stopTimeout time.Duration) *Launcher {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Launcher{
		adapters:    make([]adapter.Adapter, 0, 4),
		stopTimeout: stopTimeout,
	}
}

// SetMetricsServer runs m alongside the adapters. A nil server disables it.
func (l *Launcher) SetMetricsServer(m *metrics.Server) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metricsServer = m
}

// AddAdapter registers an adapter to be started by Serve().
//
// Two adapters may not share a fixed port. Adapters configured with a port
// chosen by the operating system (zero or negative) never conflict.
//
// Returns:
//   - error if Serve() has already been called or the port is taken
//
// Panics if a is nil (programmer error).
func (l *Launcher) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.served.Load() {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	port := a.Port()
	if port > 0 {
		for _, existing := range l.adapters {
			if existing.Port() == port {
				return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
			}
		}
	}

	l.adapters = append(l.adapters, a)
	logger.Info("Registered %s adapter on port %d", a.Protocol(), port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails:
//   - All adapters receive Stop() calls in reverse registration order
//   - The Stop() calls share one context bounded by the stop timeout
//   - Serve() waits for every adapter goroutine before returning
//
// Returns:
//   - ctx.Err() when shutdown was triggered by the context
//   - the first adapter error when an adapter failed
//   - ErrAlreadyServed on a second call
func (l *Launcher) Serve(ctx context.Context) error {
	if !l.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}

	l.mu.RLock()
	adapters := make([]adapter.Adapter, len(l.adapters))
	copy(adapters, l.adapters)
	metricsServer := l.metricsServer
	l.mu.RUnlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting %d adapter(s)", len(adapters))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters)+1)

	var wg conc.WaitGroup
	startTime := time.Now()

	if metricsServer != nil {
		wg.Go(func() {
			if err := metricsServer.Start(serveCtx); err != nil && serveCtx.Err() == nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		})
	}

	for _, adp := range adapters {
		a := adp
		wg.Go(func() {
			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(serveCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case errors.Is(err, context.Canceled) || serveCtx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", protocol)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		})
	}
	logger.Debug("Adapters launched in %v", time.Since(startTime))

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancel()
	l.stopAll(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("All adapters stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order. Errors are logged and
// the remaining adapters are still stopped.
func (l *Launcher) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), l.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (l *Launcher) Adapters() []adapter.Adapter {
	l.mu.RLock()
	defer l.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(l.adapters))
	copy(adapters, l.adapters)
	return adapters
}
