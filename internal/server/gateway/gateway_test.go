package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/internal/metrics"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/internal/server/api/handler"
	"github.com/shinow/qrscan/internal/server/gateway"
	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanner"
)

func newGateway(t *testing.T, cfg gateway.Config) *gateway.Gateway {
	t.Helper()
	rec := metrics.New()
	c := scanner.New(scanner.Options{
		Detector:  detect.New(detect.DefaultOptions()),
		Generator: qrgen.New(qrgen.DefaultOptions()),
		Observer:  rec,
	})
	t.Cleanup(c.Shutdown)
	r := api.NewRouter()
	handler.Register(r, c, "test")
	return gateway.New(cfg, r, rec.Registry(), slog.Default())
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestGenerateThenScanOverHTTP(t *testing.T) {
	srv := httptest.NewServer(newGateway(t, gateway.Config{AllowOrigin: "*", Metrics: true}).Handler())
	defer srv.Close()

	resp, body := post(t, srv.URL+"/api/generate", `{"code":"over http"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var gen apitypes.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &gen))
	assert.Equal(t, "png", gen.Format)

	req, err := json.Marshal(apitypes.ScanBytesRequest{Bytes: gen.Image})
	require.NoError(t, err)
	resp, body = post(t, srv.URL+"/api/scan/bytes", string(req))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var scan apitypes.ScanResponse
	require.NoError(t, json.Unmarshal(body, &scan))
	assert.True(t, scan.Found)
	assert.Equal(t, "over http", scan.Payload)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	mb, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(mb), `qrscan_results_total{code="",op="scan.bytes",outcome="payload"} 1`)
}

func TestProblemStatus(t *testing.T) {
	srv := httptest.NewServer(newGateway(t, gateway.Config{}).Handler())
	defer srv.Close()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "unknown path", path: "/api/nope", status: http.StatusNotFound},
		{name: "bad json", path: "/api/scan/path", body: "{", status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "missing code", path: "/api/generate", body: `{}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "no surface", path: "/api/scan/live", status: http.StatusServiceUnavailable, code: "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
			var p apitypes.ApiError
			require.NoError(t, json.Unmarshal(body, &p))
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.code, p.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newGateway(t, gateway.Config{AllowOrigin: "https://example.test"}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPasswordRequiredForRemoteClients(t *testing.T) {
	h := newGateway(t, gateway.Config{Password: "s3cret"}).Handler()

	tests := []struct {
		name   string
		remote string
		token  string
		status int
	}{
		{name: "loopback", remote: "127.0.0.1:5000", status: http.StatusOK},
		{name: "remote without token", remote: "192.0.2.7:5000", status: http.StatusUnauthorized},
		{name: "remote wrong token", remote: "192.0.2.7:5000", token: "nope", status: http.StatusUnauthorized},
		{name: "remote with token", remote: "192.0.2.7:5000", token: "s3cret", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ping", nil)
			req.RemoteAddr = tt.remote
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMetricsDisabled(t *testing.T) {
	h := newGateway(t, gateway.Config{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndClose(t *testing.T) {
	g := newGateway(t, gateway.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, g.Start())
	resp, err := http.Get("http://" + g.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.Close(ctx))
}
