package metrics

import "time"

// Prepare outcomes reported through RecordPrepare.
const (
	OutcomeComplete  = "complete"
	OutcomePartial   = "partial"
	OutcomeNoData    = "no_data"
	OutcomeMalformed = "malformed"
	OutcomeReadError = "read_error"
)

// Illegal request reasons reported through RecordIllegalRequest.
const (
	ReasonMalformed    = "malformed"
	ReasonReadError    = "read_error"
	ReasonUnknownKey   = "unknown_key"
	ReasonHandlerError = "handler_error"
	ReasonDestroyed    = "destroyed"
)

// ServletMetrics provides observability for a server's servlet registry and
// its exchange pipeline.
//
// The interface is optional. A server without metrics uses NewNoopServletMetrics,
// which has zero overhead.
//
// Example usage:
//
//	srv := server.New(registry, binding)
//	srv.SetMetrics(prometheus.NewServletMetrics("frame-9000"))
type ServletMetrics interface {
	// RecordServletRegistered records a servlet added to the registry with the
	// number of routing keys bound to it.
	RecordServletRegistered(servlet string, keys int)

	// RecordPrepare records how the header of a request was resolved.
	// outcome is one of the Outcome* constants.
	RecordPrepare(outcome string)

	// RecordExecute records one servlet invocation.
	RecordExecute(servlet string, duration time.Duration, err error)

	// RecordIllegalRequest records a request counted as illegal.
	// reason is one of the Reason* constants.
	RecordIllegalRequest(reason string)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// SetPoolStats publishes the occupancy of a named object pool.
	SetPoolStats(pool string, idle int, outstanding int64)
}

// NewNoopServletMetrics returns a ServletMetrics that discards everything.
func NewNoopServletMetrics() ServletMetrics {
	return noopServletMetrics{}
}

type noopServletMetrics struct{}

func (noopServletMetrics) RecordServletRegistered(string, int)        {}
func (noopServletMetrics) RecordPrepare(string)                       {}
func (noopServletMetrics) RecordExecute(string, time.Duration, error) {}
func (noopServletMetrics) RecordIllegalRequest(string)                {}
func (noopServletMetrics) RecordConnectionAccepted()                  {}
func (noopServletMetrics) SetPoolStats(string, int, int64)            {}
