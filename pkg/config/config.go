package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittonet/pkg/server"
	"github.com/spf13/viper"
)

// Config represents the complete DittoNet configuration.
//
// This structure captures all configurable aspects of DittoNet including:
//   - Logging configuration
//   - Process-wide settings
//   - The Prometheus metrics endpoint
//   - The list of servers, each with its transport settings and servlets
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTONET_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Servlet Configuration Pattern:
// Each servlet type decodes its own options map (for example the store
// settings of a kv servlet), so this package does not need to know them.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Servers lists the listening endpoints
	Servers []ServerEntry `mapstructure:"servers" yaml:"servers" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics server and Prometheus collectors
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics HTTP port
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// ServerEntry is one listening endpoint: a named server.Config plus the
// servlets bound to its routing keys.
type ServerEntry struct {
	// Name identifies the server in logs and metric labels
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Config holds the transport and pool settings, inlined in the entry
	server.Config `mapstructure:",squash" yaml:",inline"`

	// Servlets are registered in order; a later servlet of the same type
	// replaces an earlier one on shared keys
	Servlets []ServletConfig `mapstructure:"servlets" yaml:"servlets" validate:"required,min=1,dive"`
}

// ServletConfig defines one servlet registration.
type ServletConfig struct {
	// Type selects the servlet implementation
	// Valid values: echo, kv
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=echo kv"`

	// Keys are the routing keys bound to the servlet
	Keys []string `mapstructure:"keys" yaml:"keys" validate:"required,min=1,dive,required"`

	// Attachment is passed to the servlet lifecycle hooks unchanged
	Attachment string `mapstructure:"attachment" yaml:"attachment,omitempty"`

	// Options holds servlet specific settings
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTONET_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTONET_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTONET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dittonet/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error: defaults are used.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittonet")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittonet")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
