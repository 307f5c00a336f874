package server

import (
	"math"
	"reflect"
	"strings"

	"github.com/marmos91/dittonet/pkg/transport"
)

// HeaderNoData is returned by Request.ReadHeader when the buffer held no
// useful bytes. The exchange is closed without counting an illegal request.
const HeaderNoData = math.MinInt

// Request is the per-exchange parse state of a protocol binding.
type Request[K comparable] interface {
	// ReadHeader parses the header from the first buffer of an exchange.
	// It returns HeaderNoData when there was nothing to parse, any other
	// negative value for a malformed header, 0 when the request is complete
	// and N > 0 when N more body bytes must be read.
	ReadHeader(buf []byte) int

	// ReadBody consumes body bytes and returns how many were consumed.
	ReadBody(buf []byte) int

	// Prepare marks the request complete. The registry calls it exactly once
	// before dispatch.
	Prepare()

	// RoutingKey selects the servlet.
	RoutingKey() K

	// Channel is the connection the request arrived on.
	Channel() transport.Channel
}

// Response is the per-exchange reply state paired with one Request.
type Response[R any] interface {
	// Request returns the request bound to this response.
	Request() R

	// Bind attaches the response and its request to ch for one exchange.
	// next is called with ch when a keep-alive exchange finishes cleanly.
	Bind(ch transport.Channel, next func(transport.Channel))

	// Finish ends the exchange. forceClose closes the channel; otherwise the
	// binding may keep the connection for the next exchange. Calls after the
	// first are no-ops.
	Finish(forceClose bool)

	// Recycle clears per-exchange state before the response is pooled.
	Recycle()
}

// ExchangeFinisher is implemented by responses that are reused across
// exchanges. Exchange identifies the exchange currently bound, or 0 when none
// is; FinishExchange finishes id and does nothing once id has ended.
type ExchangeFinisher interface {
	Exchange() uint64
	FinishExchange(id uint64, forceClose bool)
}

// Servlet handles prepared requests. A servlet must finish the response,
// directly or from a completion, unless it returns an error. A servlet that
// returns an error after finishing must not touch the response again: the
// registry only force-closes the exchange it dispatched.
type Servlet[R, P any] interface {
	Execute(req R, resp P) error
}

// ServletConfig is the registration-time configuration handed to servlet
// lifecycle hooks.
type ServletConfig struct {
	// Attachment is opaque to the registry.
	Attachment any

	// Options holds servlet specific settings, usually decoded with
	// mapstructure by the servlet itself.
	Options map[string]any
}

// Initializer is implemented by servlets that need setup when the server
// starts.
type Initializer interface {
	Init(ctx *Context, conf ServletConfig) error
}

// Destroyer is implemented by servlets that release resources when the
// server shuts down.
type Destroyer interface {
	Destroy(ctx *Context, conf ServletConfig)
}

// Binding adapts a concrete protocol to the generic server.
type Binding[K comparable, R Request[K], P Response[R]] interface {
	// Name is used in logs and metric labels.
	Name() string

	// NewResponse allocates a response with its paired request. Finish must
	// hand the response to release, which returns it to the server's pool.
	NewResponse(ctx *Context, release func(P) bool) P
}

// Variant returns the identity of a servlet: its concrete dynamic type.
// Two servlets with the same Variant are interchangeable regardless of their
// internal state.
func Variant(s any) reflect.Type {
	return reflect.TypeOf(s)
}

// SameVariant reports whether a and b have the same concrete type.
func SameVariant(a, b any) bool {
	return Variant(a) == Variant(b)
}

// variantName is the printable form of a variant used in logs and metrics.
func variantName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(t.String(), "*")
}
