package frame

import (
	"errors"

	"github.com/marmos91/dittonet/pkg/server"
	"github.com/marmos91/dittonet/pkg/transport"
)

// ReadHeader results for malformed requests.
const (
	headerTruncated = -1 - iota
	headerBadMagic
	headerBodyTooLarge
	headerKeyTruncated
	headerBadKey
)

// maxRetainedBody bounds the body capacity kept across recycles.
const maxRetainedBody = 64 << 10

// Request is a FRAME request being assembled from channel reads.
type Request struct {
	ctx       *server.Context
	ch        transport.Channel
	flags     byte
	rawKey    []byte
	key       string
	body      []byte
	remaining int
	prepared  bool
}

// ReadHeader parses the header and key from the first read of an exchange
// and consumes whatever body bytes arrived with them. Header and key must fit
// in that first read.
func (r *Request) ReadHeader(buf []byte) int {
	if len(buf) == 0 {
		return server.HeaderNoData
	}

	h, err := ParseHeader(buf)
	switch {
	case errors.Is(err, ErrShortHeader):
		return headerTruncated
	case err != nil:
		return headerBadMagic
	case h.BodyLen > r.ctx.Config().MaxBody:
		return headerBodyTooLarge
	case len(buf) < HeaderSize+h.KeyLen:
		return headerKeyTruncated
	}

	r.flags = h.Flags
	r.rawKey = append(r.rawKey[:0], buf[HeaderSize:HeaderSize+h.KeyLen]...)
	key, err := r.ctx.Charset().NewDecoder().Bytes(r.rawKey)
	if err != nil {
		return headerBadKey
	}
	r.key = string(key)

	if cap(r.body) < h.BodyLen {
		r.body = make([]byte, 0, h.BodyLen)
	}
	r.remaining = h.BodyLen
	r.ReadBody(buf[HeaderSize+h.KeyLen:])
	return r.remaining
}

// ReadBody appends up to the remaining body length from buf.
func (r *Request) ReadBody(buf []byte) int {
	n := min(len(buf), r.remaining)
	r.body = append(r.body, buf[:n]...)
	r.remaining -= n
	return n
}

func (r *Request) Prepare() {
	r.prepared = true
}

// RoutingKey is the decoded key.
func (r *Request) RoutingKey() string {
	return r.key
}

func (r *Request) Channel() transport.Channel {
	return r.ch
}

// Body is the complete request body. It is only valid until the exchange
// finishes.
func (r *Request) Body() []byte {
	return r.body
}

// Flags returns the request header flags.
func (r *Request) Flags() byte {
	return r.flags
}

// KeepAlive reports whether the client wants the connection kept open.
func (r *Request) KeepAlive() bool {
	return r.flags&FlagClose == 0
}

// Prepared reports whether the body is complete.
func (r *Request) Prepared() bool {
	return r.prepared
}

// Context returns the server context the request belongs to.
func (r *Request) Context() *server.Context {
	return r.ctx
}

func (r *Request) reset() {
	r.ch = nil
	r.flags = 0
	r.rawKey = r.rawKey[:0]
	r.key = ""
	r.remaining = 0
	r.prepared = false
	if cap(r.body) > maxRetainedBody {
		r.body = nil
	} else {
		r.body = r.body[:0]
	}
}
