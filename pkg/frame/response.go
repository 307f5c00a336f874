package frame

import (
	"sync/atomic"

	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/server"
	"github.com/marmos91/dittonet/pkg/transport"
)

// Response writes the reply of one FRAME exchange and returns itself to the
// server's response pool when the exchange finishes.
type Response struct {
	req     Request
	ctx     *server.Context
	ch      transport.Channel
	next    func(transport.Channel)
	release func(*Response) bool

	// gen identifies the current exchange; active holds it until Finish
	gen    atomic.Uint64
	active atomic.Uint64
}

// NewResponse allocates an unbound Response. release may be nil.
func NewResponse(ctx *server.Context, release func(*Response) bool) *Response {
	resp := &Response{ctx: ctx, release: release}
	resp.req.ctx = ctx
	return resp
}

func (r *Response) Request() *Request {
	return &r.req
}

// Bind starts a new exchange on ch.
func (r *Response) Bind(ch transport.Channel, next func(transport.Channel)) {
	r.ch = ch
	r.req.ch = ch
	r.next = next
	r.active.Store(r.gen.Add(1))
}

// Reply sends body with the given flags and finishes the exchange once the
// write completes. The connection is closed after the reply when the write
// fails or either side asked for it with FlagClose.
func (r *Response) Reply(flags byte, body []byte) error {
	gen := r.active.Load()
	if gen == 0 {
		return server.ErrInvalidState
	}

	closeAfter := !r.req.KeepAlive() || flags&FlagClose != 0
	if closeAfter {
		flags |= FlagClose
	}

	var buf *pool.Buffer
	var frame []byte
	var err error
	if size := FrameSize(r.req.rawKey, body); size <= r.ctx.Config().BufferCapacity {
		buf = r.ctx.Buffers().Poll()
		frame, err = AppendFrame(buf.Free()[:0], flags, r.req.rawKey, body)
	} else {
		frame, err = AppendFrame(make([]byte, 0, size), flags, r.req.rawKey, body)
	}
	if err != nil {
		if buf != nil {
			r.ctx.Buffers().Offer(buf)
		}
		return err
	}

	ch := r.ch
	ch.Write(frame, func(_ int, err error) {
		if buf != nil {
			r.ctx.Buffers().Offer(buf)
		}
		if err != nil {
			r.ctx.Logger().Debug("Reply write failed on %s: %v", ch.ID(), err)
		}
		r.finish(gen, closeAfter || err != nil)
	})
	return nil
}

// Fail replies with an error frame carrying err's message and closes the
// connection afterwards.
func (r *Response) Fail(err error) error {
	return r.Reply(FlagError|FlagClose, []byte(err.Error()))
}

// Finish ends the current exchange. Without forceClose a keep-alive
// connection is handed back to the server for the next request.
func (r *Response) Finish(forceClose bool) {
	gen := r.active.Load()
	if gen == 0 {
		r.ctx.Logger().Debug("Finish called on an already finished exchange")
		return
	}
	r.finish(gen, forceClose)
}

// Exchange returns the id of the bound exchange, 0 once it has finished.
func (r *Response) Exchange() uint64 {
	return r.active.Load()
}

// FinishExchange finishes exchange id if it is still the bound one.
func (r *Response) FinishExchange(id uint64, forceClose bool) {
	if id == 0 {
		return
	}
	r.finish(id, forceClose)
}

// finish ends exchange gen. Completions of an earlier exchange are ignored.
func (r *Response) finish(gen uint64, forceClose bool) {
	if !r.active.CompareAndSwap(gen, 0) {
		return
	}

	ch, next := r.ch, r.next
	keepAlive := !forceClose && r.req.KeepAlive() && ch != nil && ch.IsOpen()
	if !keepAlive && ch != nil {
		_ = ch.Close()
	}

	if r.release != nil {
		r.release(r)
	} else {
		r.Recycle()
	}

	if keepAlive && next != nil {
		next(ch)
	}
}

// Recycle clears the exchange state.
func (r *Response) Recycle() {
	r.ch = nil
	r.next = nil
	r.req.reset()
}
