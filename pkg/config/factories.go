package config

import (
	"fmt"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/adapter"
	"github.com/marmos91/dittonet/pkg/frame"
	"github.com/marmos91/dittonet/pkg/metrics/prometheus"
)

// CreateServers builds one initialized FRAME server per configured entry.
//
// For every entry the servlets are created by type, registered on their keys
// with their attachment and options, and the server is initialized with the
// entry's transport settings. Servlet Init hooks (for example opening a kv
// store) run later, when the server starts.
//
// Metrics must be initialized first (see InitializeMetrics) for the servers
// to report to Prometheus.
//
// Parameters:
//   - cfg: The complete, validated DittoNet configuration
//
// Returns:
//   - []adapter.Adapter: Servers ready to be added to the launcher
//   - error: Servlet creation, registration or server configuration error
func CreateServers(cfg *Config) ([]adapter.Adapter, error) {
	adapters := make([]adapter.Adapter, 0, len(cfg.Servers))

	for i := range cfg.Servers {
		srv, err := CreateServer(&cfg.Servers[i])
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", cfg.Servers[i].Name, err)
		}
		adapters = append(adapters, srv)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no servers configured")
	}

	return adapters, nil
}

// CreateServer builds and initializes the FRAME server of one entry.
func CreateServer(entry *ServerEntry) (*frame.Server, error) {
	registry := frame.NewRegistry()

	for i, sc := range entry.Servlets {
		servlet, err := frame.NewServlet(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("servlets[%d]: %w", i, err)
		}

		var attachment any
		if sc.Attachment != "" {
			attachment = sc.Attachment
		}
		if err := registry.AddServlet(servlet, attachment, sc.Options, sc.Keys...); err != nil {
			return nil, fmt.Errorf("servlets[%d]: %w", i, err)
		}
		logger.Debug("Server %s: %s servlet bound to %v", entry.Name, sc.Type, sc.Keys)
	}

	srv := frame.NewServer(registry)
	srv.SetMetrics(prometheus.NewServletMetrics(entry.Name))

	serverCfg := entry.Config
	if err := srv.Init(&serverCfg); err != nil {
		return nil, err
	}

	return srv, nil
}
