package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFileOutput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, SetOutput(path))
	t.Cleanup(func() {
		_ = SetOutput("stdout")
		SetLevel("INFO")
		SetFormat("text")
	})
	return path
}

func TestLevelFiltering(t *testing.T) {
	path := withFileOutput(t)
	SetLevel("WARN")

	Info("hidden %d", 1)
	Warn("visible %d", 2)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden 1")
	assert.Contains(t, string(content), "visible 2")
}

func TestNamedLogger(t *testing.T) {
	path := withFileOutput(t)

	Named("FrameServer").Info("listening")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[FrameServer] listening")
}

func TestJSONFormat(t *testing.T) {
	path := withFileOutput(t)
	SetFormat("json")

	Named("registry").Error("boom %s", "here")

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "registry", entry["logger"])
	assert.Equal(t, "boom here", entry["msg"])
}

func TestEnabled(t *testing.T) {
	withFileOutput(t)
	SetLevel("debug")
	assert.True(t, Enabled(LevelDebug))

	SetLevel("ERROR")
	assert.False(t, Enabled(LevelWarn))
	assert.True(t, Enabled(LevelError))
}
