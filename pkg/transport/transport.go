// Package transport defines the completion-based byte-stream contract used by
// the server core and provides the TCP implementation.
//
// A Channel never blocks its caller: Read and Write start the operation and
// return immediately, and the completion callback runs later on the Executor
// supplied in Options. This keeps worker goroutines free while a connection
// waits for bytes; only the short-lived I/O goroutine is parked in the kernel.
//
// Acceptors are created by protocol name through a small factory registry so
// the server core stays independent of any concrete transport:
//
//	acceptor, err := transport.Create("TCP", transport.Options{Executor: exec})
//	acceptor.Open()
//	acceptor.Bind("0.0.0.0:9000", 8192)
//	acceptor.Accept(func(ch transport.Channel) { ... })
package transport

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittonet/internal/ratelimiter"
	"github.com/marmos91/dittonet/pkg/pool"
)

var (
	// ErrUnknownProtocol is returned by Create for unregistered protocol names.
	ErrUnknownProtocol = errors.New("transport: unknown protocol")

	// ErrClosed is reported to completions issued on a closed channel or acceptor.
	ErrClosed = errors.New("transport: closed")

	// ErrNotBound is returned by Accept before Bind succeeded.
	ErrNotBound = errors.New("transport: acceptor not bound")
)

// CompletionFunc receives the outcome of an asynchronous read or write.
// n is the number of bytes transferred; err is non-nil on failure, including
// io.EOF when the peer closed the stream.
type CompletionFunc func(n int, err error)

// Channel is a non-blocking byte-stream endpoint for one connection.
type Channel interface {
	// ID uniquely identifies the channel for logging.
	ID() string

	// Read fills buf.Free() with at most its length and advances buf by the
	// number of bytes received before invoking done.
	Read(buf *pool.Buffer, done CompletionFunc)

	// Write sends all of p and then invokes done. p must stay untouched until
	// done runs.
	Write(p []byte, done CompletionFunc)

	// Close closes the underlying connection. Safe to call more than once.
	Close() error

	// IsOpen reports whether Close has not been called yet.
	IsOpen() bool

	RemoteAddr() net.Addr
}

// Option names a socket option an Acceptor may support.
type Option string

const (
	// OptionNoDelay disables Nagle's algorithm on accepted connections.
	OptionNoDelay Option = "TCP_NODELAY"

	// OptionKeepAlive enables TCP keep-alive probes on accepted connections.
	OptionKeepAlive Option = "SO_KEEPALIVE"
)

// Executor runs completion callbacks. Execute returns an error when the
// executor no longer accepts work; the channel then runs the callback inline.
type Executor interface {
	Execute(task func()) error
}

// Options configures an Acceptor and the channels it produces.
type Options struct {
	// ReadTimeout bounds every pending read. Zero means no timeout.
	ReadTimeout time.Duration

	// WriteTimeout bounds every pending write. Zero means no timeout.
	WriteTimeout time.Duration

	// Executor runs completions. Nil runs them on the I/O goroutine.
	Executor Executor

	// Limiter throttles Accept. Nil disables throttling.
	Limiter *ratelimiter.RateLimiter
}

// Acceptor listens for connections of one protocol.
type Acceptor interface {
	// Open prepares the acceptor. It must be called before Bind.
	Open() error

	// SupportedOptions lists the options SetOption accepts.
	SupportedOptions() []Option

	// SetOption sets an option applied to every accepted channel.
	SetOption(opt Option, value any) error

	// Bind binds the listening socket to addr with the given accept backlog.
	Bind(addr string, backlog int) error

	// Accept starts the accept loop in its own goroutine and returns
	// immediately. handler is invoked once per accepted channel.
	Accept(handler func(Channel)) error

	// Close stops accepting. Channels already handed out stay open.
	Close() error

	// Addr returns the bound address, or nil before Bind.
	Addr() net.Addr
}

// Factory builds an Acceptor from Options.
type Factory func(opts Options) (Acceptor, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a transport available under name (case-insensitive).
// Registering the same name twice replaces the previous factory.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("transport: nil factory for " + name)
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToUpper(name)] = factory
}

// Create builds an Acceptor for the named protocol.
func Create(protocol string, opts Options) (Acceptor, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToUpper(protocol)]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProtocol, protocol, strings.Join(Protocols(), ", "))
	}
	return factory(opts)
}

// Protocols returns the registered protocol names in sorted order.
func Protocols() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
