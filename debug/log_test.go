package debug

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestHandlerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn"))

	logger.Info("quiet")
	logger.Warn("port gone", "name", "USB MIDI")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "port gone")
	assert.Contains(t, out, "USB MIDI")
}

func TestHandlerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "trace"))
	logger.Log(t.Context(), LevelTrace, "note on")
	assert.Contains(t, buf.String(), "note on")

	buf.Reset()
	logger = slog.New(NewHandler(&buf, "debug"))
	logger.Log(t.Context(), LevelTrace, "note on")
	assert.Empty(t, buf.String())
}

func TestSetupFile(t *testing.T) {
	dir := t.TempDir()
	path, err := DefaultFile(filepath.Join(dir, "pasqually"))
	require.NoError(t, err)
	assert.Equal(t, FileName, filepath.Base(path))

	logger, closers, err := Setup("info", path)
	require.NoError(t, err)
	require.Len(t, closers, 1)
	logger.Info("movements loaded", "count", 4)
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug logging started")
	assert.Contains(t, string(data), "movements loaded")
}

func TestSetupStderr(t *testing.T) {
	logger, closers, err := Setup("info", "")
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Empty(t, closers)
}

func TestEvery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "debug"))
	log := Every(logger, 3)
	for i := 0; i < 7; i++ {
		log(slog.LevelInfo, "tick")
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "tick"))

	buf.Reset()
	log = Every(logger, 0)
	for i := 0; i < 3; i++ {
		log(slog.LevelInfo, "tock")
	}
	assert.Equal(t, 3, strings.Count(buf.String(), "tock"))
}
