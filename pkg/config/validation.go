package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittonet/pkg/server"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("servers: at least one server must be configured")
	}

	names := make(map[string]bool)
	addresses := make(map[string]string)
	for i := range cfg.Servers {
		entry := &cfg.Servers[i]

		if names[entry.Name] {
			return fmt.Errorf("servers[%d]: duplicate server name %q", i, entry.Name)
		}
		names[entry.Name] = true

		if err := entry.Config.Validate(); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}

		if entry.Port != server.AnyPort {
			addr := entry.Address()
			if other, ok := addresses[addr]; ok {
				return fmt.Errorf("servers[%d]: address %s already used by server %q", i, addr, other)
			}
			addresses[addr] = entry.Name
		}

		// Same-type servlets may share keys (the later one wins); different
		// types on one key would be a routing conflict at registration.
		keys := make(map[string]string)
		for j, servlet := range entry.Servlets {
			for _, key := range servlet.Keys {
				if other, ok := keys[key]; ok && other != servlet.Type {
					return fmt.Errorf("servers[%d].servlets[%d]: key %q is already bound to a %s servlet", i, j, key, other)
				}
				keys[key] = servlet.Type
			}
		}
	}

	if cfg.Metrics.Enabled {
		for i, entry := range cfg.Servers {
			if entry.Port == cfg.Metrics.Port {
				return fmt.Errorf("servers[%d]: port %d is used by the metrics server", i, entry.Port)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
