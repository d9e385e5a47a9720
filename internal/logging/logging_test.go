package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestSetupFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pastelite.log")

	logger, closer, err := Setup("warn", path)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "id", "abc12345")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc12345", entry["id"])
}

func TestSetupStderr(t *testing.T) {
	logger, closer, err := Setup("debug", "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupBadPath(t *testing.T) {
	_, _, err := Setup("info", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}
