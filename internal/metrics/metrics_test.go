package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/scanerr"
	"github.com/shinow/qrscan/scanner"
)

func TestObserveResult(t *testing.T) {
	r := New()
	r.ObserveResult(scanner.OpScanBytes, scanner.Payload("x"), 10*time.Millisecond)
	r.ObserveResult(scanner.OpScanBytes, scanner.Payload("y"), 10*time.Millisecond)
	r.ObserveResult(scanner.OpScanBytes, scanner.Empty(), time.Millisecond)
	r.ObserveResult(scanner.OpScanLive, scanner.Failed("scan.live", scanerr.CodeBusy, scanerr.New(scanerr.CodeBusy, "scan.live", "busy")), 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.results.WithLabelValues("scan.bytes", "payload", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("scan.bytes", "empty", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("scan.live", "error", "BUSY")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestObserveStateIsOneHot(t *testing.T) {
	r := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("idle")))

	r.ObserveState(scanner.StateLive)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("live")))
	assert.Equal(t, 4, testutil.CollectAndCount(r.state))
}

func TestRecorderObservesController(t *testing.T) {
	r := New()
	c := scanner.New(scanner.Options{Observer: r})
	defer c.Shutdown()

	res := c.Dispatch(context.Background(), scanner.Request{Op: scanner.OpScanBytes})
	require.Equal(t, scanner.KindError, res.Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("scan.bytes", "error", "INVALID_ARGUMENT")))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["qrscan_results_total"])
	assert.True(t, names["qrscan_session_state"])
	assert.True(t, names["go_goroutines"])
}
