package frame

import (
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/server"
	"github.com/marmos91/dittonet/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		frame, err := AppendFrame(nil, FlagClose, []byte("ECHO"), []byte("hello"))
		require.NoError(t, err)
		assert.Len(t, frame, FrameSize([]byte("ECHO"), []byte("hello")))

		h, err := ParseHeader(frame)
		require.NoError(t, err)
		assert.Equal(t, Header{Flags: FlagClose, KeyLen: 4, BodyLen: 5}, h)
		assert.Equal(t, len(frame), h.Size())
		assert.Equal(t, "ECHOhello", string(frame[HeaderSize:]))
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := ParseHeader([]byte{0xD7, 0x0F, 0})
		assert.ErrorIs(t, err, ErrShortHeader)
	})

	t.Run("BadMagic", func(t *testing.T) {
		_, err := ParseHeader([]byte("GET / HTTP/1.1"))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("KeyTooLong", func(t *testing.T) {
		_, err := AppendFrame(nil, 0, []byte(strings.Repeat("k", MaxKeyLen+1)), nil)
		assert.ErrorIs(t, err, ErrKeyTooLong)
	})
}

func newParseContext(t *testing.T) *server.Context {
	t.Helper()
	cfg := &server.Config{Port: server.AnyPort, BufferCapacity: 64, MaxBody: 1024}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	ctx, err := server.NewContext(cfg, nil, nil)
	require.NoError(t, err)
	return ctx
}

func mustFrame(t *testing.T, flags byte, key, body string) []byte {
	t.Helper()
	frame, err := AppendFrame(nil, flags, []byte(key), []byte(body))
	require.NoError(t, err)
	return frame
}

func TestRequestReadHeader(t *testing.T) {
	ctx := newParseContext(t)

	tests := []struct {
		name      string
		input     []byte
		want      int
		wantKey   string
		wantBody  string
		keepAlive bool
	}{
		{name: "Empty", input: nil, want: server.HeaderNoData},
		{name: "Truncated", input: []byte{0xD7, 0x0F}, want: headerTruncated},
		{name: "BadMagic", input: []byte("xxxxxxxxxx"), want: headerBadMagic},
		{
			name:  "BodyTooLarge",
			input: []byte{0xD7, 0x0F, 0, 1, 0, 0, 0x10, 0, 'K'},
			want:  headerBodyTooLarge,
		},
		{
			name:  "KeyTruncated",
			input: mustFrame(t, 0, "LONGKEY", "")[:HeaderSize+3],
			want:  headerKeyTruncated,
		},
		{
			name:      "Complete",
			input:     mustFrame(t, 0, "ECHO", "hi"),
			want:      0,
			wantKey:   "ECHO",
			wantBody:  "hi",
			keepAlive: true,
		},
		{
			name:     "PartialBody",
			input:    mustFrame(t, FlagClose, "ECHO", "hello world")[:HeaderSize+4+5],
			want:     6,
			wantKey:  "ECHO",
			wantBody: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewResponse(ctx, nil).Request()
			got := req.ReadHeader(tt.input)
			assert.Equal(t, tt.want, got)
			if got < 0 {
				return
			}
			assert.Equal(t, tt.wantKey, req.RoutingKey())
			assert.Equal(t, tt.wantBody, string(req.Body()))
			assert.Equal(t, tt.keepAlive, req.KeepAlive())
		})
	}

	t.Run("ReadBodyStopsAtLength", func(t *testing.T) {
		req := NewResponse(ctx, nil).Request()
		frame := mustFrame(t, 0, "K", "abcdef")
		require.Equal(t, 4, req.ReadHeader(frame[:HeaderSize+1+2]))

		assert.Equal(t, 4, req.ReadBody([]byte("cdefEXTRA")))
		assert.Equal(t, "abcdef", string(req.Body()))
	})

	t.Run("RecycleClearsState", func(t *testing.T) {
		resp := NewResponse(ctx, nil)
		req := resp.Request()
		require.Equal(t, 0, req.ReadHeader(mustFrame(t, 0, "K", "body")))
		req.Prepare()

		resp.Recycle()
		assert.Empty(t, req.RoutingKey())
		assert.Empty(t, req.Body())
		assert.False(t, req.Prepared())
		assert.Nil(t, req.Channel())
	})
}

func TestResponseRequiresBind(t *testing.T) {
	resp := NewResponse(newParseContext(t), nil)
	assert.ErrorIs(t, resp.Reply(0, nil), server.ErrInvalidState)
	assert.NotPanics(t, func() { resp.Finish(false) })
}

// stubChannel completes writes immediately and records Close.
type stubChannel struct {
	closed atomic.Bool
}

func (c *stubChannel) ID() string { return "stub" }

func (c *stubChannel) Read(_ *pool.Buffer, done transport.CompletionFunc) {
	done(0, transport.ErrClosed)
}

func (c *stubChannel) Write(p []byte, done transport.CompletionFunc) { done(len(p), nil) }

func (c *stubChannel) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *stubChannel) IsOpen() bool { return !c.closed.Load() }

func (c *stubChannel) RemoteAddr() net.Addr { return &net.TCPAddr{} }

func TestResponseFinishExchange(t *testing.T) {
	resp := NewResponse(newParseContext(t), nil)

	first := &stubChannel{}
	resp.Bind(first, nil)
	id := resp.Exchange()
	require.NotZero(t, id)
	resp.Finish(false)
	assert.Zero(t, resp.Exchange())

	second := &stubChannel{}
	resp.Bind(second, nil)
	resp.FinishExchange(id, true)
	assert.True(t, second.IsOpen(), "an ended exchange cannot close its successor")
	assert.NotZero(t, resp.Exchange())

	resp.FinishExchange(0, true)
	assert.True(t, second.IsOpen())

	resp.FinishExchange(resp.Exchange(), true)
	assert.False(t, second.IsOpen())
	assert.Zero(t, resp.Exchange())
}
