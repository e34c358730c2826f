package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/internal/log"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/surface"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	s := &Server{
		ApiServerConfig: api.ServerConfig{Addr: "127.0.0.1:0"},
		Surface:         surface.Config{Mode: "none"},
		KeyFile:         filepath.Join(dir, "key.txt"),
		ShutdownTimeout: time.Second,
	}
	s.Permission.File = filepath.Join(dir, "permissions.yaml")
	return s
}

func TestStartServerRequiresAddr(t *testing.T) {
	s := testServer(t)
	s.ApiServerConfig.Addr = ""
	err := s.StartServer(context.Background(), slog.Default(), log.NewRaw(nil), strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestStartServerGeneratesKeyAndStops(t *testing.T) {
	s := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.StartServer(ctx, slog.Default(), log.NewRaw(nil), strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(s.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(data)), s.ApiServerConfig.Password)
	assert.Equal(t, s.ApiServerConfig.Password, s.HTTP.Password)

	again := testServer(t)
	again.KeyFile = s.KeyFile
	require.NoError(t, again.loadPassword(slog.Default()))
	assert.Equal(t, s.ApiServerConfig.Password, again.ApiServerConfig.Password)
}

func TestStartServerRejectsBadSurfaceMode(t *testing.T) {
	s := testServer(t)
	s.Surface.Mode = "window"
	err := s.StartServer(context.Background(), slog.Default(), log.NewRaw(nil), strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}
