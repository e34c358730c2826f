package log

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
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupSplitsConsoleStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := setup(Config{Level: "debug"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("dbg")
	logger.Info("inf")
	logger.Error("bad")
	logger.Log(t.Context(), LevelTrace, "hidden")

	assert.Contains(t, stdout.String(), "msg=dbg")
	assert.Contains(t, stdout.String(), "msg=inf")
	assert.NotContains(t, stdout.String(), "bad")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stderr.String(), "msg=bad")
}

func TestSetupTraceAndFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "qrscan.log")
	logger, closers, err := setup(Config{Level: "trace", Format: "json", File: path}, &stdout, &stderr)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.With("session", "abc").Log(t.Context(), LevelTrace, "state")
	require.NoError(t, closers[0].Close())

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), `"level":"TRACE"`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session":"abc"`)
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)
	r.Log(true, "1.2.3.4:5", []byte{0xde, 0xad})
	r.Log(false, "1.2.3.4:5", nil)
	big := bytes.Repeat([]byte{1}, maxRawDump+10)
	r.Log(false, "1.2.3.4:5", big)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "C->S frame: 2 bytes, hex: dead")
	assert.Contains(t, lines[1], "S->C")
	assert.True(t, strings.HasSuffix(lines[1], "...(+10 bytes)"))

	NewRaw(nil).Log(true, "x", []byte{1})
}
