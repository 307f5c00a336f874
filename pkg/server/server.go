// Package server is the transport-agnostic core of an asynchronous network
// server.
//
// A Server accepts connections through a named transport, reads the first
// bytes of every exchange into a pooled buffer and hands them to a Registry.
// The registry completes the request over as many non-blocking reads as
// needed and dispatches it to the Servlet bound to its routing key.
//
// Concrete protocols plug in through Binding, Request and Response:
//
//	registry := server.NewRegistry[string, *frame.Request, *frame.Response]()
//	registry.AddServlet(&frame.EchoServlet{}, nil, nil, "ECHO")
//
//	srv := server.New(registry, frame.Binding{})
//	if err := srv.Init(&server.Config{Port: 9000}); err != nil {
//	    return err
//	}
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown()
//
// Lifecycle:
//
//	Unconfigured -Init-> Initialized -Start-> Started -Shutdown-> ShuttingDown -> Stopped
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/ratelimiter"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/transport"
)

// State is a Server lifecycle state.
type State int32

const (
	StateUnconfigured State = iota
	StateInitialized
	StateStarted
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server owns the configuration, the worker pool, the acceptor and the
// servlet registry of one listening endpoint.
//
// Thread safety:
// Lifecycle methods are serialized. Shutdown and Destroy are safe to call
// more than once and after a failed Start.
type Server[K comparable, R Request[K], P Response[R]] struct {
	registry *Registry[K, R, P]
	binding  Binding[K, R, P]
	metrics  metrics.ServletMetrics

	mu    sync.Mutex
	state atomic.Int32

	config    *Config
	log       *logger.Logger
	executor  *Executor
	ctx       *Context
	responses *pool.ObjectPool[P]
	acceptor  transport.Acceptor

	// channels tracks open connections; those waiting on a read are closed on Shutdown
	channels sync.Map

	stopStats   context.CancelFunc
	destroyOnce sync.Once
}

// New creates an unconfigured Server dispatching to registry.
func New[K comparable, R Request[K], P Response[R]](registry *Registry[K, R, P], binding Binding[K, R, P]) *Server[K, R, P] {
	if registry == nil {
		panic("server: registry cannot be nil")
	}
	if binding == nil {
		panic("server: binding cannot be nil")
	}
	return &Server[K, R, P]{
		registry: registry,
		binding:  binding,
		metrics:  metrics.NewNoopServletMetrics(),
		log:      logger.Named(binding.Name()),
	}
}

// SetMetrics sets the sink attached to the registry at Start.
func (s *Server[K, R, P]) SetMetrics(m metrics.ServletMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		m = metrics.NewNoopServletMetrics()
	}
	s.metrics = m
}

// State returns the current lifecycle state.
func (s *Server[K, R, P]) State() State {
	return State(s.state.Load())
}

// Registry returns the servlet registry.
func (s *Server[K, R, P]) Registry() *Registry[K, R, P] {
	return s.registry
}

// Context returns the server context, or nil before Start.
func (s *Server[K, R, P]) Context() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Init applies defaults to a copy of cfg, validates it and builds the worker
// pool.
func (s *Server[K, R, P]) Init(cfg *Config) error {
	if cfg == nil {
		return ErrNilConfig
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != StateUnconfigured {
		return fmt.Errorf("%w: init in state %s", ErrInvalidState, state)
	}

	config := *cfg
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return err
	}

	s.config = &config
	s.log = logger.Named(fmt.Sprintf("%s-%s", s.binding.Name(), portLabel(config.Port)))
	s.executor = NewExecutor(fmt.Sprintf("%s-%s", config.Protocol, portLabel(config.Port)), config.Threads)
	s.state.Store(int32(StateInitialized))

	s.log.Debug("Initialized: protocol=%s address=%s threads=%d charset=%s",
		config.Protocol, config.Address(), config.Threads, config.Charset)
	return nil
}

// Config returns a copy of the effective configuration, or nil before Init.
func (s *Server[K, R, P]) Config() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil
	}
	config := *s.config
	return &config
}

// Start creates the context and pools, initializes the registry, binds the
// acceptor and begins accepting connections.
//
// On error the server stays Initialized with whatever was created; call
// Shutdown to release it.
func (s *Server[K, R, P]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != StateInitialized {
		return fmt.Errorf("%w: start in state %s", ErrInvalidState, state)
	}
	if s.acceptor != nil {
		return fmt.Errorf("%w: start already attempted", ErrInvalidState)
	}

	started := time.Now()
	cfg := s.config

	ctx, err := NewContext(cfg, s.log, s.executor)
	if err != nil {
		return err
	}
	s.ctx = ctx

	var responses *pool.ObjectPool[P]
	responses = pool.New(cfg.ResponsePoolSize,
		func() P { return s.binding.NewResponse(ctx, responses.Offer) },
		func(p P) { p.Recycle() },
	)
	s.responses = responses

	if err := s.registry.Init(ctx); err != nil {
		return err
	}
	s.registry.Attach(s.metrics)

	var limiter *ratelimiter.RateLimiter
	if cfg.MaxAcceptRate > 0 {
		limiter = ratelimiter.New(uint(cfg.MaxAcceptRate), uint(cfg.AcceptBurst))
	}

	acceptor, err := transport.Create(cfg.Protocol, transport.Options{
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		Executor:     s.executor,
		Limiter:      limiter,
	})
	if err != nil {
		return err
	}
	s.acceptor = acceptor

	if err := acceptor.Open(); err != nil {
		return fmt.Errorf("open %s acceptor: %w", cfg.Protocol, err)
	}
	for _, opt := range acceptor.SupportedOptions() {
		enable := opt == transport.OptionNoDelay || (opt == transport.OptionKeepAlive && cfg.KeepAlive)
		if !enable {
			continue
		}
		if err := acceptor.SetOption(opt, true); err != nil {
			s.log.Warn("Failed to enable %s: %v", opt, err)
		}
	}
	if err := acceptor.Bind(cfg.Address(), cfg.Backlog); err != nil {
		return err
	}

	s.state.Store(int32(StateStarted))
	if err := acceptor.Accept(s.accept); err != nil {
		s.state.Store(int32(StateInitialized))
		return fmt.Errorf("accept on %s: %w", acceptor.Addr(), err)
	}

	if cfg.StatsLogInterval > 0 {
		statsCtx, cancel := context.WithCancel(context.Background())
		s.stopStats = cancel
		go s.logStats(statsCtx, cfg.StatsLogInterval)
	}

	s.log.Info("Listening on %s (threads=%d buffer=%s bufferPool=%d responsePool=%d backlog=%d maxbody=%s) in %v",
		acceptor.Addr(), cfg.Threads, humanize.IBytes(uint64(cfg.BufferCapacity)),
		cfg.BufferPoolSize, cfg.ResponsePoolSize, cfg.Backlog,
		humanize.IBytes(uint64(cfg.MaxBody)), time.Since(started))
	return nil
}

// accept runs on the acceptor goroutine for every new connection.
func (s *Server[K, R, P]) accept(ch transport.Channel) {
	tracked := &trackedChannel[K, R, P]{Channel: ch, server: s}
	s.channels.Store(ch.ID(), tracked)
	s.metrics.RecordConnectionAccepted()
	s.log.Debug("Connection %s accepted from %s", ch.ID(), ch.RemoteAddr())

	s.serveChannel(tracked)
}

// serveChannel arms the first read of the next exchange on ch. It is also
// the continuation handed to Response.Bind for keep-alive connections.
func (s *Server[K, R, P]) serveChannel(ch transport.Channel) {
	if _, tracked := ch.(*trackedChannel[K, R, P]); !tracked && s.State() != StateStarted {
		_ = ch.Close()
		return
	}

	buffers := s.ctx.Buffers()
	buf := buffers.Poll()
	ch.Read(buf, func(n int, err error) {
		if err != nil || n == 0 {
			buffers.Offer(buf)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, transport.ErrClosed) {
				s.log.Debug("Read failed on %s: %v", ch.ID(), err)
			}
			_ = ch.Close()
			return
		}

		resp := s.responses.Poll()
		resp.Bind(ch, s.serveChannel)
		s.registry.Prepare(buf, resp.Request(), resp)
	})
}

// Shutdown stops accepting, destroys the registry, closes every connection
// waiting on a read and stops the worker pool from taking new work. Pending
// reads fail through their completions, which return the buffers they hold.
// Exchanges running a servlet or writing a reply are not interrupted: they
// complete and their connections close afterwards.
func (s *Server[K, R, P]) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.State(); state {
	case StateUnconfigured:
		return fmt.Errorf("%w: shutdown in state %s", ErrInvalidState, state)
	case StateShuttingDown, StateStopped:
		return nil
	}

	began := time.Now()
	s.state.Store(int32(StateShuttingDown))

	if s.acceptor != nil {
		if err := s.acceptor.Close(); err != nil {
			s.log.Debug("Error closing acceptor: %v", err)
		}
	}

	s.registry.Destroy()

	closed := 0
	s.channels.Range(func(_, value any) bool {
		if tracked := value.(*trackedChannel[K, R, P]); tracked.reading.Load() {
			_ = tracked.Close()
			closed++
		}
		return true
	})

	s.cancelStats()
	s.executor.Close()

	s.state.Store(int32(StateStopped))
	s.log.Info("Shutdown complete in %v (closed %d waiting connection(s), executed=%d illegal=%d)",
		time.Since(began), closed, s.registry.ExecuteCount(), s.registry.IllegalRequestCount())
	return nil
}

// Destroy tears the server down without draining: the registry is destroyed,
// scheduled tasks are cancelled and every tracked connection is closed.
// Only the first call has an effect.
func (s *Server[K, R, P]) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.registry.Destroy()
		s.cancelStats()

		if s.acceptor != nil {
			_ = s.acceptor.Close()
		}
		s.channels.Range(func(_, value any) bool {
			_ = value.(*trackedChannel[K, R, P]).Close()
			return true
		})
		if s.executor != nil {
			s.executor.Close()
		}

		s.state.Store(int32(StateStopped))
		s.log.Debug("Destroyed")
	})
}

// cancelStats stops the periodic stats task. The caller holds mu.
func (s *Server[K, R, P]) cancelStats() {
	if s.stopStats != nil {
		s.stopStats()
		s.stopStats = nil
	}
}

// logStats periodically logs pool occupancy and registry counters and
// publishes the pool gauges.
func (s *Server[K, R, P]) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buffers := s.ctx.Buffers().Stats()
			responses := s.responses.Stats()
			s.metrics.SetPoolStats("buffer", buffers.Idle, buffers.Outstanding)
			s.metrics.SetPoolStats("response", responses.Idle, responses.Outstanding)

			s.log.Info("Stats: connections=%d executed=%d illegal=%d buffers(idle=%d outstanding=%d dropped=%d) responses(idle=%d outstanding=%d dropped=%d) pending=%d",
				s.ActiveConnections(), s.registry.ExecuteCount(), s.registry.IllegalRequestCount(),
				buffers.Idle, buffers.Outstanding, buffers.Dropped,
				responses.Idle, responses.Outstanding, responses.Dropped,
				s.executor.Pending())
		}
	}
}

// BufferStats returns the read buffer pool counters. The zero value is
// returned before Start.
func (s *Server[K, R, P]) BufferStats() pool.Stats {
	ctx := s.Context()
	if ctx == nil {
		return pool.Stats{}
	}
	return ctx.Buffers().Stats()
}

// ResponseStats returns the response pool counters.
func (s *Server[K, R, P]) ResponseStats() pool.Stats {
	s.mu.Lock()
	responses := s.responses
	s.mu.Unlock()
	if responses == nil {
		return pool.Stats{}
	}
	return responses.Stats()
}

// ActiveConnections is the number of open accepted connections.
func (s *Server[K, R, P]) ActiveConnections() int {
	count := 0
	s.channels.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Addr returns the bound address, or nil before Start.
func (s *Server[K, R, P]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// Serve starts the server and blocks until ctx is cancelled, then shuts it
// down. It implements adapter.Adapter.
func (s *Server[K, R, P]) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		if s.State() == StateInitialized {
			_ = s.Shutdown()
		}
		return fmt.Errorf("failed to start %s server: %w", s.binding.Name(), err)
	}

	<-ctx.Done()
	s.log.Info("Shutdown signal received: %v", ctx.Err())
	if err := s.Shutdown(); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop shuts the server down and waits for queued completions to run, or
// for ctx to expire. It implements adapter.Adapter.
func (s *Server[K, R, P]) Stop(ctx context.Context) error {
	if s.State() == StateUnconfigured {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return err
	}
	return s.executor.Wait(ctx)
}

// Protocol returns the binding name. It implements adapter.Adapter.
func (s *Server[K, R, P]) Protocol() string {
	return s.binding.Name()
}

// Port returns the bound port once started, the configured port otherwise.
// It implements adapter.Adapter.
func (s *Server[K, R, P]) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return 0
	}
	return s.config.Port
}

// trackedChannel removes itself from the server's connection set on Close
// and records whether a read is pending on it.
type trackedChannel[K comparable, R Request[K], P Response[R]] struct {
	transport.Channel
	server  *Server[K, R, P]
	reading atomic.Bool
}

// Read marks the channel as waiting before issuing the read. Once Shutdown
// has begun no new read is issued: the completion fails with
// transport.ErrClosed instead.
func (c *trackedChannel[K, R, P]) Read(buf *pool.Buffer, done transport.CompletionFunc) {
	c.reading.Store(true)
	// Checked after the flag so Shutdown either sees the flag or this check
	// sees the new state.
	if c.server.State() != StateStarted {
		c.reading.Store(false)
		_ = c.Close()
		done(0, transport.ErrClosed)
		return
	}

	c.Channel.Read(buf, func(n int, err error) {
		c.reading.Store(false)
		done(n, err)
	})
}

func (c *trackedChannel[K, R, P]) Close() error {
	if _, loaded := c.server.channels.LoadAndDelete(c.ID()); loaded {
		c.server.log.Debug("Connection %s closed", c.ID())
	}
	return c.Channel.Close()
}

func portLabel(port int) string {
	if port == AnyPort {
		return "any"
	}
	return strconv.Itoa(port)
}
