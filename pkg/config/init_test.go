package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// useTempConfigDir points the default config location at a temporary home.
func useTempConfigDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

func TestInitConfig_Success(t *testing.T) {
	tmpDir := useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if !strings.HasPrefix(configPath, tmpDir) {
		t.Errorf("Expected config under %s, got %s", tmpDir, configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# DittoNet Configuration File",
		"logging:",
		"server:",
		"metrics:",
		"servers:",
		"servlets:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	useTempConfigDir(t)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("modified: true\n"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path %s, got %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.Contains(string(content), "# DittoNet Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath(t *testing.T) {
	t.Run("CreatesParentDirectories", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custom", "dittonet.yaml")

		if err := InitConfigToPath(configPath, false); err != nil {
			t.Fatalf("InitConfigToPath failed: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("Config file was not created: %v", err)
		}
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
			t.Fatalf("Failed to create existing file: %v", err)
		}

		err := InitConfigToPath(configPath, false)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Expected 'already exists' error, got: %v", err)
		}
	})

	t.Run("ForceOverwrite", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
			t.Fatalf("Failed to create existing file: %v", err)
		}

		if err := InitConfigToPath(configPath, true); err != nil {
			t.Fatalf("Force InitConfigToPath failed: %v", err)
		}
		content, _ := os.ReadFile(configPath)
		if string(content) == "existing" {
			t.Error("Config file was not overwritten")
		}
	})
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	expected := []string{
		"# Logging:",
		"# Listening endpoints.",
		"level: INFO",
		"shutdown_timeout: 30s",
		"port: 9000",
		"type: echo",
		"- ECHO",
		"timeout: 10s",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("Generated YAML missing %q", want)
		}
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	defaults := GetDefaultConfig()
	if cfg.Logging.Level != defaults.Logging.Level {
		t.Errorf("Expected %s log level, got %q", defaults.Logging.Level, cfg.Logging.Level)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Port != DefaultPort {
		t.Fatalf("Expected the default server, got %+v", cfg.Servers)
	}
	if cfg.Servers[0].Threads != defaults.Servers[0].Threads {
		t.Errorf("Expected %d threads, got %d", defaults.Servers[0].Threads, cfg.Servers[0].Threads)
	}
	kv := cfg.Servers[0].Servlets[1]
	if kv.Type != "kv" || kv.Options["timeout"] != "10s" {
		t.Errorf("Unexpected kv servlet: %+v", kv)
	}
}
