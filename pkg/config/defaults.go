package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittonet/pkg/server"
)

// DefaultPort is the port of the server created when none is configured.
const DefaultPort = 9000

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Servlet options are left to the servlets
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)

	if len(cfg.Servers) == 0 {
		cfg.Servers = []ServerEntry{defaultServerEntry()}
	}
	applyServerEntryDefaults(cfg.Servers)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets process-wide defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults. Metrics stay disabled unless
// enabled explicitly.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyServerEntryDefaults fills every entry's transport settings and
// normalizes servlet types.
func applyServerEntryDefaults(entries []ServerEntry) {
	for i := range entries {
		entry := &entries[i]

		entry.Config.ApplyDefaults()
		if entry.Name == "" {
			entry.Name = strings.ToLower(entry.Protocol) + "-" + portName(entry.Port)
		}

		for j := range entry.Servlets {
			servlet := &entry.Servlets[j]
			servlet.Type = strings.ToLower(servlet.Type)
			if servlet.Options == nil {
				servlet.Options = make(map[string]any)
			}
		}
	}
}

// defaultServerEntry is a server with an echo and an in-memory kv servlet.
func defaultServerEntry() ServerEntry {
	return ServerEntry{
		Name:   "frame",
		Config: server.Config{Port: DefaultPort},
		Servlets: []ServletConfig{
			{Type: "echo", Keys: []string{"ECHO"}},
			{
				Type: "kv",
				Keys: []string{"KV"},
				Options: map[string]any{
					"timeout": "10s",
					"store":   map[string]any{"type": "memory"},
				},
			},
		},
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Servers: []ServerEntry{defaultServerEntry()},
	}

	ApplyDefaults(cfg)
	return cfg
}

func portName(port int) string {
	if port == server.AnyPort {
		return "any"
	}
	return strconv.Itoa(port)
}
