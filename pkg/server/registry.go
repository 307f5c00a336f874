package server

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/pool"
	"github.com/marmos91/dittonet/pkg/transport"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/marmos91/dittonet/pkg/server"

// registration is one member of the servlet set.
type registration[K comparable, R, P any] struct {
	servlet     Servlet[R, P]
	variant     reflect.Type
	name        string
	config      ServletConfig
	keys        []K
	initialized bool
}

// metricsSink boxes the interface so it can live behind an atomic.Pointer.
type metricsSink struct {
	metrics.ServletMetrics
}

// Registry routes prepared requests to servlets and drives the partial-read
// pipeline that assembles a request from one or more buffer reads.
//
// Routing:
// Servlets form a set keyed by Variant. A routing key maps to exactly one
// member of the set. Binding a key that already belongs to a different
// variant fails with ErrRoutingConflict; registering the same variant again
// replaces the previous instance and re-points all of its keys, so the newest
// instance wins.
//
// Thread safety:
// The key mapping is a copy-on-write snapshot. Lookups never block and
// AddServlet may run concurrently with live traffic. The execute and
// illegal-request counters are atomic.
type Registry[K comparable, R Request[K], P Response[R]] struct {
	mu       sync.Mutex
	servlets map[reflect.Type]*registration[K, R, P]
	order    []reflect.Type
	mappings atomic.Pointer[map[K]*registration[K, R, P]]

	ctx         atomic.Pointer[Context]
	initialized bool
	destroyed   atomic.Bool

	executeCount atomic.Int64
	illegalCount atomic.Int64

	metrics atomic.Pointer[metricsSink]
	tracer  trace.Tracer
	log     *logger.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry[K comparable, R Request[K], P Response[R]]() *Registry[K, R, P] {
	r := &Registry[K, R, P]{
		servlets: make(map[reflect.Type]*registration[K, R, P]),
		tracer:   otel.Tracer(tracerName),
		log:      logger.Named("registry"),
	}
	empty := make(map[K]*registration[K, R, P])
	r.mappings.Store(&empty)
	r.metrics.Store(&metricsSink{metrics.NewNoopServletMetrics()})
	return r
}

// AddServlet registers s under every key in keys. attachment and options are
// passed to the servlet's Init and Destroy hooks.
//
// When the registry is already initialized the Init hook runs before the
// servlet becomes reachable. A failing AddServlet leaves the registry
// untouched.
func (r *Registry[K, R, P]) AddServlet(s Servlet[R, P], attachment any, options map[string]any, keys ...K) error {
	if s == nil {
		return ErrNilServlet
	}
	if len(keys) == 0 {
		return ErrNoRoutingKeys
	}

	variant := Variant(s)
	name := variantName(variant)

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.mappings.Load()
	for _, key := range keys {
		if bound, ok := current[key]; ok && bound.variant != variant {
			return fmt.Errorf("%w: key %v belongs to %s, cannot bind %s", ErrRoutingConflict, key, bound.name, name)
		}
	}

	reg := &registration[K, R, P]{
		servlet: s,
		variant: variant,
		name:    name,
		config:  ServletConfig{Attachment: attachment, Options: options},
	}

	previous := r.servlets[variant]
	if previous != nil {
		reg.keys = slices.Clone(previous.keys)
	}
	for _, key := range keys {
		if !slices.Contains(reg.keys, key) {
			reg.keys = append(reg.keys, key)
		}
	}

	ctx := r.ctx.Load()
	if r.initialized && !r.destroyed.Load() {
		if err := initServlet(ctx, reg); err != nil {
			return err
		}
	}

	next := make(map[K]*registration[K, R, P], len(current)+len(keys))
	for key, bound := range current {
		next[key] = bound
	}
	for _, key := range reg.keys {
		next[key] = reg
	}
	r.mappings.Store(&next)

	r.servlets[variant] = reg
	if previous == nil {
		r.order = append(r.order, variant)
	} else {
		r.log.Debug("Servlet %s replaced by a newer instance", name)
		if previous.initialized {
			destroyServlet(ctx, previous)
		}
	}

	r.sink().RecordServletRegistered(name, len(reg.keys))
	r.log.Debug("Registered servlet %s for keys %v", name, reg.keys)
	return nil
}

// Lookup returns the servlet bound to key.
func (r *Registry[K, R, P]) Lookup(key K) (Servlet[R, P], bool) {
	reg, ok := (*r.mappings.Load())[key]
	if !ok {
		return nil, false
	}
	return reg.servlet, true
}

// Servlets returns the members of the servlet set in registration order.
func (r *Registry[K, R, P]) Servlets() []Servlet[R, P] {
	r.mu.Lock()
	defer r.mu.Unlock()

	servlets := make([]Servlet[R, P], 0, len(r.order))
	for _, variant := range r.order {
		servlets = append(servlets, r.servlets[variant].servlet)
	}
	return servlets
}

// Attach sets the metrics sink and replays the existing registrations to it.
func (r *Registry[K, R, P]) Attach(m metrics.ServletMetrics) {
	if m == nil {
		m = metrics.NewNoopServletMetrics()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.Store(&metricsSink{m})
	for _, variant := range r.order {
		reg := r.servlets[variant]
		m.RecordServletRegistered(reg.name, len(reg.keys))
	}
}

// Init binds the registry to ctx and runs the Init hook of every servlet in
// registration order. Calling Init again is a no-op.
func (r *Registry[K, R, P]) Init(ctx *Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("%w: registry needs a context", ErrInvalidState)
	}

	r.ctx.Store(ctx)
	r.log = ctx.Logger()
	for _, variant := range r.order {
		if err := initServlet(ctx, r.servlets[variant]); err != nil {
			return err
		}
	}
	r.initialized = true
	return nil
}

// Destroy runs the Destroy hook of every initialized servlet in reverse
// registration order. After Destroy no servlet is executed again; pending
// exchanges are force-closed instead. Only the first call has an effect.
func (r *Registry[K, R, P]) Destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := r.ctx.Load()
	for i := len(r.order) - 1; i >= 0; i-- {
		destroyServlet(ctx, r.servlets[r.order[i]])
	}
	r.log.Debug("Servlet registry destroyed (%d servlet(s))", len(r.order))
}

// ExecuteCount is the number of Prepare calls.
func (r *Registry[K, R, P]) ExecuteCount() int64 {
	return r.executeCount.Load()
}

// IllegalRequestCount is the number of exchanges rejected as illegal:
// malformed headers, failed body reads, unknown keys and servlet failures.
func (r *Registry[K, R, P]) IllegalRequestCount() int64 {
	return r.illegalCount.Load()
}

// Prepare is invoked once per exchange with the first buffer read from the
// request's channel. It parses the header, reads the rest of the body when
// needed and dispatches the prepared request. Prepare returns buf to the
// context's buffer pool exactly once and finishes resp on every failure path.
//
// Body reads are chained: the next read is issued only from the completion
// of the previous one, so a channel never has two reads in flight.
func (r *Registry[K, R, P]) Prepare(buf *pool.Buffer, req R, resp P) {
	r.executeCount.Add(1)

	rs := req.ReadHeader(buf.Bytes())
	switch {
	case rs == HeaderNoData:
		r.sink().RecordPrepare(metrics.OutcomeNoData)
		r.release(buf)
		resp.Finish(true)

	case rs < 0:
		r.sink().RecordPrepare(metrics.OutcomeMalformed)
		r.illegal(metrics.ReasonMalformed)
		r.release(buf)
		resp.Finish(true)

	case rs == 0:
		r.sink().RecordPrepare(metrics.OutcomeComplete)
		r.release(buf)
		req.Prepare()
		r.dispatch(req, resp)

	default:
		r.sink().RecordPrepare(metrics.OutcomePartial)
		buf.Reset()
		r.readBody(buf, req, resp, rs)
	}
}

// readBody reads until remaining body bytes have been consumed.
func (r *Registry[K, R, P]) readBody(buf *pool.Buffer, req R, resp P, remaining int) {
	ch := req.Channel()

	var onRead transport.CompletionFunc
	onRead = func(n int, err error) {
		if err == nil && n <= 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			r.illegal(metrics.ReasonReadError)
			r.release(buf)
			resp.Finish(true)
			r.log.Debug("Body read failed on %s with %d byte(s) missing: %v", channelID(ch), remaining, err)
			return
		}

		remaining -= req.ReadBody(buf.Bytes())
		if remaining > 0 {
			buf.Reset()
			ch.Read(buf, onRead)
			return
		}

		r.release(buf)
		req.Prepare()
		r.dispatch(req, resp)
	}

	ch.Read(buf, onRead)
}

// dispatch executes the servlet bound to the request's routing key.
func (r *Registry[K, R, P]) dispatch(req R, resp P) {
	if r.destroyed.Load() {
		r.illegal(metrics.ReasonDestroyed)
		resp.Finish(true)
		return
	}

	key := req.RoutingKey()
	reg, ok := (*r.mappings.Load())[key]
	if !ok {
		r.illegal(metrics.ReasonUnknownKey)
		resp.Finish(true)
		r.log.Debug("No servlet bound to key %v on %s", key, channelID(req.Channel()))
		return
	}

	_, span := r.tracer.Start(context.Background(), "servlet.execute",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("servlet.name", reg.name),
			attribute.String("servlet.key", fmt.Sprint(key)),
		))
	defer span.End()

	// A pooled response may already serve another exchange by the time a
	// failing servlet returns.
	finisher, tracked := any(resp).(ExchangeFinisher)
	var exchange uint64
	if tracked {
		exchange = finisher.Exchange()
	}

	start := time.Now()
	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		err = reg.servlet.Execute(req, resp)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = recovered.AsError()
	}
	r.sink().RecordExecute(reg.name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "servlet failed")
		r.illegal(metrics.ReasonHandlerError)
		if tracked {
			finisher.FinishExchange(exchange, true)
		} else {
			resp.Finish(true)
		}
		r.log.Warn("Servlet %s failed on %s: %v", reg.name, channelID(req.Channel()), err)
	}
}

func (r *Registry[K, R, P]) illegal(reason string) {
	r.illegalCount.Add(1)
	r.sink().RecordIllegalRequest(reason)
}

func (r *Registry[K, R, P]) release(buf *pool.Buffer) {
	if ctx := r.ctx.Load(); ctx != nil {
		ctx.Buffers().Offer(buf)
	}
}

func (r *Registry[K, R, P]) sink() metrics.ServletMetrics {
	return r.metrics.Load().ServletMetrics
}

func initServlet[K comparable, R, P any](ctx *Context, reg *registration[K, R, P]) error {
	if initializer, ok := reg.servlet.(Initializer); ok {
		if err := initializer.Init(ctx, reg.config); err != nil {
			return fmt.Errorf("init servlet %s: %w", reg.name, err)
		}
	}
	reg.initialized = true
	return nil
}

func destroyServlet[K comparable, R, P any](ctx *Context, reg *registration[K, R, P]) {
	if !reg.initialized {
		return
	}
	reg.initialized = false

	destroyer, ok := reg.servlet.(Destroyer)
	if !ok {
		return
	}
	if recovered := panics.Try(func() { destroyer.Destroy(ctx, reg.config) }); recovered != nil {
		logger.Error("Servlet %s panicked during destroy: %v", reg.name, recovered.AsError())
	}
}

func channelID(ch transport.Channel) string {
	if ch == nil {
		return "<unbound>"
	}
	return ch.ID()
}
