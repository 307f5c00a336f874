package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoNet Configuration File
#
# Every value can be overridden with an environment variable:
# DITTONET_<SECTION>_<KEY>, for example DITTONET_LOGGING_LEVEL=DEBUG.

`

// sectionComments document the top-level sections of a generated file.
var sectionComments = map[string]string{
	"logging": "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json),\noutput (stdout, stderr or a file path)",
	"server":  "Process-wide settings",
	"metrics": "Prometheus endpoint serving /metrics and /healthz",
	"servers": "Listening endpoints. Each entry carries its transport and pool\n" +
		"settings and the servlets bound to its routing keys.\n" +
		"Servlet types: echo, kv (options: timeout, store.type memory|badger|s3)",
}

// InitConfig writes a sample configuration to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or writing failed
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and a
// comment above each top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return configHeader + buf.String(), nil
}
