package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/server"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestApplyDefaults_DefaultServer(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if len(cfg.Servers) != 1 {
		t.Fatalf("Expected a default server, got %d", len(cfg.Servers))
	}
	entry := cfg.Servers[0]
	if entry.Name != "frame" || entry.Port != DefaultPort {
		t.Errorf("Unexpected default server %q on port %d", entry.Name, entry.Port)
	}
	if entry.Threads != runtime.NumCPU()*16 {
		t.Errorf("Expected %d threads, got %d", runtime.NumCPU()*16, entry.Threads)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{ShutdownTimeout: time.Minute},
		Servers: []ServerEntry{{
			Config:   server.Config{Port: 7000, Threads: 3, Protocol: "tcp"},
			Servlets: []ServletConfig{{Type: "ECHO", Keys: []string{"E"}}},
		}},
	}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != time.Minute {
		t.Errorf("Expected shutdown timeout preserved, got %v", cfg.Server.ShutdownTimeout)
	}
	entry := cfg.Servers[0]
	if entry.Threads != 3 || entry.Port != 7000 {
		t.Errorf("Expected explicit values preserved, got threads=%d port=%d", entry.Threads, entry.Port)
	}
	if entry.Protocol != "TCP" {
		t.Errorf("Expected protocol normalized to 'TCP', got %q", entry.Protocol)
	}
	if entry.Name != "tcp-7000" {
		t.Errorf("Expected generated name 'tcp-7000', got %q", entry.Name)
	}
	if entry.Servlets[0].Type != "echo" {
		t.Errorf("Expected servlet type normalized to 'echo', got %q", entry.Servlets[0].Type)
	}
}

func TestApplyDefaults_AnyPortName(t *testing.T) {
	cfg := &Config{Servers: []ServerEntry{{
		Config:   server.Config{Port: server.AnyPort},
		Servlets: []ServletConfig{{Type: "echo", Keys: []string{"E"}}},
	}}}
	ApplyDefaults(cfg)

	if cfg.Servers[0].Name != "tcp-any" {
		t.Errorf("Expected generated name 'tcp-any', got %q", cfg.Servers[0].Name)
	}
}
