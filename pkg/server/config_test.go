package server

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	cores := runtime.NumCPU()
	assert.Equal(t, "TCP", cfg.Protocol)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, "UTF-8", cfg.Charset)
	assert.Equal(t, 8192, cfg.Backlog)
	assert.Equal(t, 0, cfg.ReadTimeoutSecond)
	assert.Equal(t, 0, cfg.WriteTimeoutSecond)
	assert.Equal(t, 65536, cfg.MaxBody)
	assert.Equal(t, 8192, cfg.BufferCapacity)
	assert.Equal(t, cores*16, cfg.Threads)
	assert.Equal(t, cores*512, cfg.BufferPoolSize)
	assert.Equal(t, cores*256, cfg.ResponsePoolSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	cfg := &Config{Protocol: "tcp", Port: 8080, Threads: 4, BufferCapacity: 1024, MaxBody: 4096}
	cfg.ApplyDefaults()

	assert.Equal(t, "TCP", cfg.Protocol)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 1024, cfg.BufferCapacity)
	assert.Equal(t, 4096, cfg.MaxBody)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"NegativeBacklog", func(c *Config) { c.Backlog = -1 }, "backlog must be greater than 0"},
		{"PortTooLarge", func(c *Config) { c.Port = 70000 }, "port must be at most 65535"},
		{"NegativeTimeout", func(c *Config) { c.ReadTimeoutSecond = -5 }, "readTimeoutSecond must be at least 0"},
		{"UnknownCharset", func(c *Config) { c.Charset = "klingon-8" }, "unsupported charset"},
		{"BurstWithoutRate", func(c *Config) { c.AcceptBurst = 10 }, "acceptBurst requires maxAcceptRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: AnyPort, ReadTimeoutSecond: 3, WriteTimeoutSecond: 7}
	cfg.ApplyDefaults()

	assert.Equal(t, "127.0.0.1:0", cfg.Address())
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 7*time.Second, cfg.WriteTimeout())

	enc, err := cfg.Encoding()
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestDecodeConfig(t *testing.T) {
	t.Run("WeaklyTyped", func(t *testing.T) {
		cfg, err := DecodeConfig(map[string]any{
			"port":             "8080",
			"threads":          4,
			"bufferCapacity":   "1024",
			"maxbody":          4096,
			"charset":          "iso-8859-1",
			"statsLogInterval": "30s",
			"keepAlive":        "true",
		})
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 4, cfg.Threads)
		assert.Equal(t, 1024, cfg.BufferCapacity)
		assert.Equal(t, 4096, cfg.MaxBody)
		assert.Equal(t, "iso-8859-1", cfg.Charset)
		assert.Equal(t, 30*time.Second, cfg.StatsLogInterval)
		assert.True(t, cfg.KeepAlive)
		assert.Equal(t, 8192, cfg.Backlog, "defaults are applied")
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := DecodeConfig(map[string]any{"backlog": -3})
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = DecodeConfig(map[string]any{"port": "not-a-number"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
