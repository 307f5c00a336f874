package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOnce              sync.Once
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	storeBytesTransferred  *prometheus.CounterVec
)

// storeMetrics is the Prometheus implementation of metrics.StoreMetrics.
type storeMetrics struct {
	backend string
}

// NewStoreMetrics creates a Prometheus-backed StoreMetrics for one backend
// ("memory", "badger" or "s3").
//
// Returns nil if metrics are not enabled, which makes the store use its
// no-op implementation.
func NewStoreMetrics(backend string) metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	storeOnce.Do(func() {
		factory := promauto.With(metrics.GetRegistry())
		storeOperationsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_store_operations_total",
				Help: "Total number of store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		)
		storeOperationDuration = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittonet_store_operation_duration_seconds",
				Help: "Duration of store operations in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					10.0,   // 10s
				},
			},
			[]string{"backend", "operation"},
		)
		storeBytesTransferred = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_store_bytes_transferred_total",
				Help: "Total payload bytes moved through store operations",
			},
			[]string{"backend", "direction"},
		)
	})

	return &storeMetrics{backend: backend}
}

func (m *storeMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	storeOperationsTotal.WithLabelValues(m.backend, operation, status).Inc()
	storeOperationDuration.WithLabelValues(m.backend, operation).Observe(duration.Seconds())
}

func (m *storeMetrics) RecordBytes(direction string, bytes int64) {
	storeBytesTransferred.WithLabelValues(m.backend, direction).Add(float64(bytes))
}
