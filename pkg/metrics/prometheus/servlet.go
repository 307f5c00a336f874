// Package prometheus implements the metrics interfaces on top of the global
// Prometheus registry.
package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// servletCollectors are shared by every server; each server binds its own
// "server" label value.
type servletCollectors struct {
	servletsRegistered  *prometheus.GaugeVec
	prepareTotal        *prometheus.CounterVec
	executeTotal        *prometheus.CounterVec
	executeDuration     *prometheus.HistogramVec
	illegalTotal        *prometheus.CounterVec
	connectionsAccepted *prometheus.CounterVec
	poolIdle            *prometheus.GaugeVec
	poolOutstanding     *prometheus.GaugeVec
}

var (
	servletOnce sync.Once
	servlet     *servletCollectors
)

func servletVectors(reg *prometheus.Registry) *servletCollectors {
	servletOnce.Do(func() {
		factory := promauto.With(reg)
		servlet = &servletCollectors{
			servletsRegistered: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittonet_servlet_routing_keys",
					Help: "Number of routing keys bound to each registered servlet",
				},
				[]string{"server", "servlet"},
			),
			prepareTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittonet_prepare_total",
					Help: "Total number of prepared requests by header outcome",
				},
				[]string{"server", "outcome"},
			),
			executeTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittonet_servlet_execute_total",
					Help: "Total number of servlet invocations by servlet and status",
				},
				[]string{"server", "servlet", "status"},
			),
			executeDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittonet_servlet_execute_duration_milliseconds",
					Help: "Duration of servlet invocations in milliseconds",
					Buckets: []float64{
						0.1,  // 100us
						1,    // 1ms
						10,   // 10ms
						100,  // 100ms
						1000, // 1s
					},
				},
				[]string{"server", "servlet"},
			),
			illegalTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittonet_illegal_requests_total",
					Help: "Total number of illegal requests by reason",
				},
				[]string{"server", "reason"},
			),
			connectionsAccepted: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittonet_connections_accepted_total",
					Help: "Total number of accepted connections",
				},
				[]string{"server"},
			),
			poolIdle: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittonet_pool_idle_objects",
					Help: "Number of idle objects held by each pool",
				},
				[]string{"server", "pool"},
			),
			poolOutstanding: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittonet_pool_outstanding_objects",
					Help: "Number of objects currently borrowed from each pool",
				},
				[]string{"server", "pool"},
			),
		}
	})
	return servlet
}

// servletMetrics is the Prometheus implementation of metrics.ServletMetrics.
type servletMetrics struct {
	server string
	c      *servletCollectors
}

// NewServletMetrics creates a Prometheus-backed ServletMetrics whose series
// carry server as the "server" label.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewServletMetrics(server string) metrics.ServletMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServletMetrics()
	}

	return &servletMetrics{
		server: server,
		c:      servletVectors(metrics.GetRegistry()),
	}
}

func (m *servletMetrics) RecordServletRegistered(servlet string, keys int) {
	m.c.servletsRegistered.WithLabelValues(m.server, servlet).Set(float64(keys))
}

func (m *servletMetrics) RecordPrepare(outcome string) {
	m.c.prepareTotal.WithLabelValues(m.server, outcome).Inc()
}

func (m *servletMetrics) RecordExecute(servlet string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.c.executeTotal.WithLabelValues(m.server, servlet, status).Inc()
	m.c.executeDuration.WithLabelValues(m.server, servlet).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *servletMetrics) RecordIllegalRequest(reason string) {
	m.c.illegalTotal.WithLabelValues(m.server, reason).Inc()
}

func (m *servletMetrics) RecordConnectionAccepted() {
	m.c.connectionsAccepted.WithLabelValues(m.server).Inc()
}

func (m *servletMetrics) SetPoolStats(pool string, idle int, outstanding int64) {
	m.c.poolIdle.WithLabelValues(m.server, pool).Set(float64(idle))
	m.c.poolOutstanding.WithLabelValues(m.server, pool).Set(float64(outstanding))
}
