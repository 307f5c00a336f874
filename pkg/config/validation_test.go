package config

import (
	"strings"
	"testing"

	"github.com/marmos91/dittonet/pkg/server"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "InvalidLogFormat",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "oneof",
		},
		{
			name:    "ZeroShutdownTimeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "NoServers",
			mutate:  func(cfg *Config) { cfg.Servers = nil },
			wantErr: "at least one server",
		},
		{
			name:    "UnknownServletType",
			mutate:  func(cfg *Config) { cfg.Servers[0].Servlets[0].Type = "http" },
			wantErr: "oneof",
		},
		{
			name:    "NoServlets",
			mutate:  func(cfg *Config) { cfg.Servers[0].Servlets = nil },
			wantErr: "Servlets",
		},
		{
			name:    "NoKeys",
			mutate:  func(cfg *Config) { cfg.Servers[0].Servlets[0].Keys = nil },
			wantErr: "Keys",
		},
		{
			name:    "EmptyKey",
			mutate:  func(cfg *Config) { cfg.Servers[0].Servlets[0].Keys = []string{""} },
			wantErr: "required",
		},
		{
			name:    "PortOutOfRange",
			mutate:  func(cfg *Config) { cfg.Servers[0].Port = 70000 },
			wantErr: "max",
		},
		{
			name:    "UnknownCharset",
			mutate:  func(cfg *Config) { cfg.Servers[0].Charset = "klingon" },
			wantErr: "unsupported charset",
		},
		{
			name: "DuplicateName",
			mutate: func(cfg *Config) {
				second := cfg.Servers[0]
				second.Port = 9001
				cfg.Servers = append(cfg.Servers, second)
			},
			wantErr: "duplicate server name",
		},
		{
			name: "DuplicateAddress",
			mutate: func(cfg *Config) {
				second := cfg.Servers[0]
				second.Name = "other"
				cfg.Servers = append(cfg.Servers, second)
			},
			wantErr: "already used by server",
		},
		{
			name: "KeyBoundToDifferentTypes",
			mutate: func(cfg *Config) {
				cfg.Servers[0].Servlets[1].Keys = []string{"ECHO"}
			},
			wantErr: `key "ECHO" is already bound to a echo servlet`,
		},
		{
			name: "MetricsPortClash",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Port = cfg.Servers[0].Port
			},
			wantErr: "used by the metrics server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_AllowedOverlaps(t *testing.T) {
	t.Run("SameTypeSharesKey", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Servers[0].Servlets = append(cfg.Servers[0].Servlets,
			ServletConfig{Type: "echo", Keys: []string{"ECHO"}, Options: map[string]any{}})

		if err := Validate(cfg); err != nil {
			t.Errorf("Expected same-type servlets to share a key, got: %v", err)
		}
	})

	t.Run("AnyPortTwice", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Servers[0].Port = server.AnyPort
		second := cfg.Servers[0]
		second.Name = "second"
		cfg.Servers = append(cfg.Servers, second)

		if err := Validate(cfg); err != nil {
			t.Errorf("Expected two servers on ephemeral ports to be valid, got: %v", err)
		}
	})
}
