package config

import (
	"github.com/marmos91/dittonet/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//
// Servers and stores created afterwards pick up Prometheus collectors; with
// metrics disabled they use no-op implementations.
//
// Parameters:
//   - cfg: The complete DittoNet configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
	}
}
