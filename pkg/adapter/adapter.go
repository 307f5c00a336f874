package adapter

import (
	"context"
)

// Adapter is a protocol server that can be managed by the launcher.
//
// Every configured server entry becomes one Adapter. Adapters share nothing
// but the process: each owns its listener, worker pool and servlets.
//
// Lifecycle:
//  1. Creation: the adapter is built and initialized from configuration
//  2. Startup: Serve() binds and blocks until the context is cancelled
//  3. Shutdown: Stop() stops accepting and waits for queued work
//
// Thread safety:
// Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must shut down:
	//   - Stop accepting new connections
	//   - Let in-flight exchanges finish
	//   - Return ctx.Err()
	//
	// If Serve returns before context cancellation, the launcher treats it as
	// a fatal error and stops all other adapters.
	//
	// Parameters:
	//   - ctx: Controls the server lifecycle. Cancellation triggers shutdown.
	//
	// Returns:
	//   - context.Canceled if cancelled via context
	//   - error if startup fails
	Serve(ctx context.Context) error

	// Stop shuts the protocol server down.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context deadline while waiting for queued work
	//
	// Parameters:
	//   - ctx: Bounds how long Stop waits. When cancelled, Stop returns.
	//
	// Returns:
	//   - nil if shutdown completed
	//   - ctx.Err() if queued work did not finish in time
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	//
	// Examples: "FRAME"
	Protocol() string

	// Port returns the port the adapter is listening on, or the configured
	// port before it has started.
	Port() int
}
