package server

import (
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/transport"
	"golang.org/x/text/encoding"
)

// Context is the shared state of one running server. It is created by Start
// and handed to protocol bindings and servlet hooks.
//
// A Context is read-only after creation and safe for concurrent use.
type Context struct {
	startTime time.Time
	log       *logger.Logger
	buffers   *pool.BufferPool
	executor  transport.Executor
	charset   encoding.Encoding
	config    *Config
}

// NewContext builds a Context around an already validated configuration.
// It is exported so protocol bindings can be exercised without a listener.
func NewContext(cfg *Config, log *logger.Logger, executor transport.Executor) (*Context, error) {
	charset, err := cfg.Encoding()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Named(cfg.Protocol)
	}

	return &Context{
		startTime: time.Now(),
		log:       log,
		buffers:   pool.NewBufferPool(cfg.BufferPoolSize, cfg.BufferCapacity),
		executor:  executor,
		charset:   charset,
		config:    cfg,
	}, nil
}

// StartTime is when the server started.
func (c *Context) StartTime() time.Time {
	return c.startTime
}

// Logger is the server's named logger.
func (c *Context) Logger() *logger.Logger {
	return c.log
}

// Buffers is the shared read buffer pool.
func (c *Context) Buffers() *pool.BufferPool {
	return c.buffers
}

// Executor runs I/O completions.
func (c *Context) Executor() transport.Executor {
	return c.executor
}

// Charset decodes textual protocol fields.
func (c *Context) Charset() encoding.Encoding {
	return c.charset
}

// Config is the server configuration. Callers must not modify it.
func (c *Context) Config() *Config {
	return c.config
}
