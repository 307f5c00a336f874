package metrics

import "time"

// StoreMetrics provides observability for key/value store backends.
//
// Backends receive nil when metrics are disabled and fall back to
// NewNoopStoreMetrics.
type StoreMetrics interface {
	// RecordOperation records one backend call.
	//
	// Parameters:
	//   - operation: "get", "put" or "delete"
	//   - duration: time spent in the backend
	//   - err: error returned by the backend, nil on success
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved in the given direction
	// ("read" or "write").
	RecordBytes(direction string, bytes int64)
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordOperation(string, time.Duration, error) {}
func (noopStoreMetrics) RecordBytes(string, int64)                    {}
