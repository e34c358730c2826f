package testing

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/shinow/qrscan/internal/log"
	"github.com/shinow/qrscan/internal/server/api"
)

// StartAPIServer starts an API server on a free loopback port and calls
// register so the test can add the handlers it needs. Returns the address
// and a function to call when done.
func StartAPIServer(t *testing.T, cfg api.ServerConfig, register func(r *api.Router, srv *api.Server)) (addr string, done func()) {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	srv, err := api.New(cfg, slog.Default(), log.NewRaw(nil))
	if err != nil {
		t.Fatalf("api new failed: %v", err)
	}
	if register != nil {
		register(srv.Router(), srv)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("api start failed: %v", err)
	}
	return srv.Addr().String(), srv.Close
}

// ExecCmd dials the API server, sends cmd framed with the \x00 terminator
// and returns the response line without its trailing newline.
func ExecCmd(t *testing.T, addr string, cmd string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	_, _ = fmt.Fprintf(c, "%s\x00", cmd)

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("read failed: %v", err)
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
}
