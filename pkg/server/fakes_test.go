package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/transport"
	"github.com/stretchr/testify/require"
)

// scriptedChannel completes reads synchronously from a list of chunks.
type scriptedChannel struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	reads   int
	closed  bool
}

func (c *scriptedChannel) ID() string { return "scripted" }

func (c *scriptedChannel) Read(buf *pool.Buffer, done transport.CompletionFunc) {
	c.mu.Lock()
	c.reads++
	if len(c.chunks) == 0 {
		err := c.readErr
		if err == nil {
			err = io.EOF
		}
		c.mu.Unlock()
		done(0, err)
		return
	}
	chunk := c.chunks[0]
	c.chunks = c.chunks[1:]
	c.mu.Unlock()

	done(buf.Write(chunk), nil)
}

func (c *scriptedChannel) Write(p []byte, done transport.CompletionFunc) { done(len(p), nil) }

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *scriptedChannel) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *scriptedChannel) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// testRequest treats every received byte as body. size is the total body
// length announced by the header; header overrides the ReadHeader result.
type testRequest struct {
	ch        transport.Channel
	key       string
	size      int
	header    int
	override  bool
	body      []byte
	remaining int
	prepared  int
}

func (r *testRequest) ReadHeader(buf []byte) int {
	if r.override {
		return r.header
	}
	if r.size < 0 {
		r.body = append(r.body, buf...)
		return 0
	}
	n := min(len(buf), r.size)
	r.body = append(r.body, buf[:n]...)
	r.remaining = r.size - n
	return r.remaining
}

func (r *testRequest) ReadBody(buf []byte) int {
	n := min(len(buf), r.remaining)
	r.body = append(r.body, buf[:n]...)
	r.remaining -= n
	return n
}

func (r *testRequest) Prepare()                   { r.prepared++ }
func (r *testRequest) RoutingKey() string         { return r.key }
func (r *testRequest) Channel() transport.Channel { return r.ch }

type testResponse struct {
	req      *testRequest
	next     func(transport.Channel)
	release  func(*testResponse) bool
	finished atomic.Int32
	forced   atomic.Bool
	exchange atomic.Uint64
}

func newTestResponse(req *testRequest) *testResponse {
	return &testResponse{req: req}
}

func (r *testResponse) Request() *testRequest { return r.req }

func (r *testResponse) Bind(ch transport.Channel, next func(transport.Channel)) {
	r.req.ch = ch
	r.next = next
	r.exchange.Add(1)
}

func (r *testResponse) Exchange() uint64 {
	if r.finished.Load() > 0 {
		return 0
	}
	return r.exchange.Load()
}

func (r *testResponse) FinishExchange(id uint64, forceClose bool) {
	if id != 0 && id == r.exchange.Load() {
		r.Finish(forceClose)
	}
}

func (r *testResponse) Finish(forceClose bool) {
	if r.finished.Add(1) > 1 {
		return
	}
	ch, next := r.req.ch, r.next
	r.forced.Store(forceClose)
	if forceClose && ch != nil {
		_ = ch.Close()
	}
	if r.release != nil {
		r.release(r)
	}
	if !forceClose && next != nil && ch != nil {
		next(ch)
	}
}

func (r *testResponse) Recycle() {
	r.req.body = nil
	r.req.ch = nil
	r.next = nil
	r.finished.Store(0)
	r.forced.Store(false)
}

type testRegistry = Registry[string, *testRequest, *testResponse]

func newTestRegistry() *testRegistry {
	return NewRegistry[string, *testRequest, *testResponse]()
}

// recordingServlet finishes every exchange cleanly.
type recordingServlet struct {
	mu     sync.Mutex
	calls  int
	bodies [][]byte
}

func (s *recordingServlet) Execute(req *testRequest, resp *testResponse) error {
	s.mu.Lock()
	s.calls++
	s.bodies = append(s.bodies, append([]byte(nil), req.body...))
	s.mu.Unlock()

	resp.Finish(false)
	return nil
}

func (s *recordingServlet) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type otherServlet struct{}

func (otherServlet) Execute(_ *testRequest, resp *testResponse) error {
	resp.Finish(false)
	return nil
}

type failingServlet struct{}

func (failingServlet) Execute(*testRequest, *testResponse) error {
	return errors.New("boom")
}

// reusedServlet finishes cleanly, lets the response be rebound to next as
// a pool would, then reports an error.
type reusedServlet struct {
	next transport.Channel
}

func (s reusedServlet) Execute(_ *testRequest, resp *testResponse) error {
	resp.Finish(false)
	resp.Recycle()
	resp.Bind(s.next, nil)
	return errors.New("late failure")
}

type panickingServlet struct{}

func (panickingServlet) Execute(*testRequest, *testResponse) error {
	panic("servlet exploded")
}

// lifecycleServlet records its hooks.
type lifecycleServlet struct {
	initErr  error
	inits    int
	destroys int
	lastConf ServletConfig
}

func (s *lifecycleServlet) Execute(_ *testRequest, resp *testResponse) error {
	resp.Finish(false)
	return nil
}

func (s *lifecycleServlet) Init(_ *Context, conf ServletConfig) error {
	s.inits++
	s.lastConf = conf
	return s.initErr
}

func (s *lifecycleServlet) Destroy(*Context, ServletConfig) {
	s.destroys++
}

// testBinding builds requests that complete on their first read.
type testBinding struct{}

func (testBinding) Name() string { return "TEST" }

func (testBinding) NewResponse(_ *Context, release func(*testResponse) bool) *testResponse {
	resp := newTestResponse(&testRequest{key: "K", size: -1})
	resp.release = release
	return resp
}

func newTestContext(t *testing.T, capacity int) *Context {
	t.Helper()

	cfg := &Config{BufferCapacity: capacity, BufferPoolSize: 4, Threads: 2}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	ctx, err := NewContext(cfg, nil, nil)
	require.NoError(t, err)
	return ctx
}

type recordingMetrics struct {
	mu         sync.Mutex
	registered map[string]int
	prepares   map[string]int
	illegal    map[string]int
	executed   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		registered: make(map[string]int),
		prepares:   make(map[string]int),
		illegal:    make(map[string]int),
	}
}

func (m *recordingMetrics) RecordServletRegistered(servlet string, keys int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[servlet] = keys
}

func (m *recordingMetrics) RecordPrepare(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepares[outcome]++
}

func (m *recordingMetrics) RecordExecute(string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed++
}

func (m *recordingMetrics) RecordIllegalRequest(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.illegal[reason]++
}

func (m *recordingMetrics) RecordConnectionAccepted()        {}
func (m *recordingMetrics) SetPoolStats(string, int, int64) {}
