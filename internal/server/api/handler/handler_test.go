package handler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/apiclient"
	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/internal/server/api/handler"
	handlerTest "github.com/shinow/qrscan/internal/testing"
	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanner"
)

type rig struct {
	addr    string
	ctl     *scanner.Controller
	camera  *handlerTest.FakeCamera
	surface *handlerTest.FakeSurface
	tracker *handlerTest.Tracker
}

func startRig(t *testing.T) *rig {
	t.Helper()
	tracker := handlerTest.NewTracker()
	cam := handlerTest.NewFakeCamera(tracker)
	surf := handlerTest.NewFakeSurface(tracker)
	ctl := scanner.New(scanner.Options{
		Camera:    cam,
		Surfaces:  handlerTest.Resolver{Surface: surf},
		Detector:  detect.New(detect.DefaultOptions()),
		Generator: qrgen.New(qrgen.DefaultOptions()),
	})
	addr, done := handlerTest.StartAPIServer(t, api.ServerConfig{}, func(r *api.Router, srv *api.Server) {
		handler.Register(r, ctl, "1.2.3")
	})
	t.Cleanup(func() {
		done()
		ctl.Shutdown()
	})
	return &rig{addr: addr, ctl: ctl, camera: cam, surface: surf, tracker: tracker}
}

func generatedPNG(t *testing.T, text string) []byte {
	t.Helper()
	img, err := qrgen.New(qrgen.DefaultOptions()).Generate(context.Background(), text)
	require.NoError(t, err)
	return img.Data
}

func TestStatelessRoutes(t *testing.T) {
	r := startRig(t)
	code := generatedPNG(t, "hello handler")
	file := filepath.Join(t.TempDir(), "code.png")
	require.NoError(t, os.WriteFile(file, code, 0o644))
	b64 := base64.StdEncoding.EncodeToString(code)

	tests := []struct {
		name             string
		path             string
		payload          any
		expectedResponse string
	}{
		{
			name:             "ping",
			path:             "ping",
			expectedResponse: `{"server":"qrscan","version":"1.2.3"}`,
		},
		{
			name:             "scan bytes",
			path:             "scan/bytes",
			payload:          `{"bytes":"` + b64 + `"}`,
			expectedResponse: `{"found":true,"payload":"hello handler"}`,
		},
		{
			name:             "scan path",
			path:             "scan/path",
			payload:          apitypes.ScanPathRequest{Path: file},
			expectedResponse: `{"found":true,"payload":"hello handler"}`,
		},
		{
			name:             "scan file uri",
			path:             "scan/path",
			payload:          apitypes.ScanPathRequest{Path: "file://" + file},
			expectedResponse: `{"found":true,"payload":"hello handler"}`,
		},
		{
			name:             "scan bytes missing",
			path:             "scan/bytes",
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"missing 'bytes'","code":"INVALID_ARGUMENT"}`,
		},
		{
			name:             "scan bytes not an image",
			path:             "scan/bytes",
			payload:          `{"bytes":"aGVsbG8="}`,
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"failed to decode image bytes","code":"INVALID_IMAGE"}`,
		},
		{
			name:             "scan path missing",
			path:             "scan/path",
			payload:          `{}`,
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"missing 'path'","code":"INVALID_ARGUMENT"}`,
		},
		{
			name:             "generate missing code",
			path:             "generate",
			payload:          `{"code":""}`,
			expectedResponse: `{"status":400,"title":"Bad Request","detail":"missing 'code'","code":"INVALID_ARGUMENT"}`,
		},
		{
			name:             "unknown path",
			path:             "scan/qr",
			expectedResponse: `{"status":404,"title":"Not Found","detail":"unknown path: scan/qr"}`,
		},
		{
			name:             "idle session",
			path:             "session",
			expectedResponse: `{"state":"idle","active":false}`,
		},
		{
			name:             "close without session",
			path:             "scan/close",
			expectedResponse: `{"closed":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := apiclient.NewTransport(r.addr)
			line, err := c.Do(tt.path, tt.payload, nil)
			assert.NoError(t, err)
			assert.JSONEq(t, tt.expectedResponse, line)
		})
	}
}

func TestBadPayload(t *testing.T) {
	r := startRig(t)
	line, err := apiclient.NewTransport(r.addr).Do("scan/live", `{"width":"wide"}`, nil)
	require.NoError(t, err)
	var p apitypes.ApiError
	require.NoError(t, json.Unmarshal([]byte(line), &p))
	assert.Equal(t, 400, p.Status)
	assert.Equal(t, "INVALID_ARGUMENT", p.Code)
}

func TestGenerateRoute(t *testing.T) {
	r := startRig(t)
	c := apiclient.New(r.addr)

	gen, err := c.Generate("round trip")
	require.NoError(t, err)
	assert.Equal(t, "png", gen.Format)
	assert.Positive(t, gen.Width)

	scan, err := c.ScanBytes(gen.Image)
	require.NoError(t, err)
	assert.Equal(t, &apitypes.ScanResponse{Found: true, Payload: "round trip"}, scan)
}

func TestLiveScanOverAPI(t *testing.T) {
	r := startRig(t)
	c := apiclient.New(r.addr)

	type reply struct {
		resp *apitypes.ScanResponse
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := c.ScanLiveCtx(context.Background(), 640, 480)
		done <- reply{resp, err}
	}()

	in := <-r.camera.Opened()
	<-in.Started()

	sess, err := c.Session()
	require.NoError(t, err)
	assert.Equal(t, "live", sess.State)
	assert.True(t, sess.Active)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "scan.live", sess.Pending)

	_, err = c.ScanPhotoCtx(context.Background())
	var apiErr *apitypes.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, "BUSY", apiErr.Code)

	in.Hit("from the camera")
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, &apitypes.ScanResponse{Found: true, Payload: "from the camera"}, got.resp)
	assert.Equal(t, 0, r.tracker.Open())
}

func TestCloseRouteEndsLiveScan(t *testing.T) {
	r := startRig(t)
	c := apiclient.New(r.addr)

	done := make(chan *apitypes.ScanResponse, 1)
	go func() {
		resp, _ := c.ScanLiveCtx(context.Background(), 0, 0)
		done <- resp
	}()
	in := <-r.camera.Opened()
	<-in.Started()

	closed, err := c.Close()
	require.NoError(t, err)
	assert.True(t, closed.Closed)

	select {
	case resp := <-done:
		assert.Equal(t, &apitypes.ScanResponse{Found: false}, resp)
	case <-time.After(5 * time.Second):
		t.Fatal("live scan did not end")
	}

	closed, err = c.Close()
	require.NoError(t, err)
	assert.False(t, closed.Closed)
}

func TestClientHangupTearsDownSession(t *testing.T) {
	r := startRig(t)
	c := apiclient.New(r.addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ScanLiveCtx(ctx, 0, 0)
		done <- err
	}()
	in := <-r.camera.Opened()
	<-in.Started()
	cancel()
	assert.Error(t, <-done)

	assert.Eventually(t, func() bool {
		s, err := c.Session()
		return err == nil && s.State == "idle" && r.tracker.Open() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
