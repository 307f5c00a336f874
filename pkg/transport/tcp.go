package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/pool"
)

func init() {
	Register("TCP", NewTCPAcceptor)
}

// tcpAcceptor implements Acceptor over a TCP listener.
type tcpAcceptor struct {
	opts Options

	mu        sync.Mutex
	opened    bool
	listener  net.Listener
	noDelay   bool
	keepAlive bool

	// cancel stops a limiter wait in the accept loop on Close
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewTCPAcceptor creates an unopened TCP Acceptor.
func NewTCPAcceptor(opts Options) (Acceptor, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &tcpAcceptor{opts: opts, ctx: ctx, cancel: cancel}, nil
}

func (a *tcpAcceptor) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrClosed
	}
	a.opened = true
	return nil
}

func (a *tcpAcceptor) SupportedOptions() []Option {
	return []Option{OptionNoDelay, OptionKeepAlive}
}

func (a *tcpAcceptor) SetOption(opt Option, value any) error {
	enabled, ok := value.(bool)
	if !ok {
		return fmt.Errorf("transport: option %s expects bool, got %T", opt, value)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch opt {
	case OptionNoDelay:
		a.noDelay = enabled
	case OptionKeepAlive:
		a.keepAlive = enabled
	default:
		return fmt.Errorf("transport: unsupported option %s for TCP", opt)
	}
	return nil
}

func (a *tcpAcceptor) Bind(addr string, backlog int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened {
		return errors.New("transport: acceptor not opened")
	}
	if a.listener != nil {
		return fmt.Errorf("transport: already bound to %s", a.listener.Addr())
	}

	listener, err := listen(addr, backlog)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	a.listener = listener
	return nil
}

func (a *tcpAcceptor) Accept(handler func(Channel)) error {
	a.mu.Lock()
	listener := a.listener
	a.mu.Unlock()

	if listener == nil {
		return ErrNotBound
	}

	go a.acceptLoop(listener, handler)
	return nil
}

// acceptLoop is the single acceptor flow: it throttles, accepts and hands
// every connection to handler until the listener is closed.
func (a *tcpAcceptor) acceptLoop(listener net.Listener, handler func(Channel)) {
	for {
		if a.opts.Limiter != nil {
			if err := a.opts.Limiter.Wait(a.ctx); err != nil {
				return
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if a.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Resource exhaustion or transient network errors: log and retry
			logger.Debug("Error accepting TCP connection: %v", err)
			time.Sleep(5 * time.Millisecond)
			continue
		}

		a.configure(conn)
		handler(NewConnChannel(conn, a.opts))
	}
}

func (a *tcpAcceptor) configure(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}

	a.mu.Lock()
	noDelay, keepAlive := a.noDelay, a.keepAlive
	a.mu.Unlock()

	if err := tcpConn.SetNoDelay(noDelay); err != nil {
		logger.Debug("Failed to set TCP_NODELAY on %s: %v", conn.RemoteAddr(), err)
	}
	if keepAlive {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			logger.Debug("Failed to set SO_KEEPALIVE on %s: %v", conn.RemoteAddr(), err)
		}
	}
}

func (a *tcpAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.cancel()

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.listener != nil {
			err = a.listener.Close()
		}
	})
	return err
}

func (a *tcpAcceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// connChannel adapts a blocking net.Conn to the completion-based Channel.
type connChannel struct {
	id     string
	conn   net.Conn
	opts   Options
	closed atomic.Bool
}

// NewConnChannel wraps conn as a Channel. Every Read and Write runs the
// blocking call on its own goroutine and posts the completion to
// opts.Executor.
func NewConnChannel(conn net.Conn, opts Options) Channel {
	return &connChannel{
		id:   uuid.NewString(),
		conn: conn,
		opts: opts,
	}
}

func (c *connChannel) ID() string {
	return c.id
}

func (c *connChannel) Read(buf *pool.Buffer, done CompletionFunc) {
	if c.closed.Load() {
		c.complete(func() { done(0, ErrClosed) })
		return
	}

	free := buf.Free()
	if len(free) == 0 {
		c.complete(func() { done(0, io.ErrShortBuffer) })
		return
	}

	go func() {
		if c.opts.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}

		n, err := c.conn.Read(free)
		if n > 0 {
			buf.Advance(n)
			// A trailing error is reported by the next read
			err = nil
		}
		c.complete(func() { done(n, err) })
	}()
}

func (c *connChannel) Write(p []byte, done CompletionFunc) {
	if c.closed.Load() {
		c.complete(func() { done(0, ErrClosed) })
		return
	}

	go func() {
		if c.opts.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		}

		n, err := c.conn.Write(p)
		c.complete(func() { done(n, err) })
	}()
}

// complete runs task on the executor, or inline once the executor is closed
// so in-flight exchanges can still release their resources.
func (c *connChannel) complete(task func()) {
	if c.opts.Executor == nil {
		task()
		return
	}
	if err := c.opts.Executor.Execute(task); err != nil {
		task()
	}
}

func (c *connChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *connChannel) IsOpen() bool {
	return !c.closed.Load()
}

func (c *connChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
