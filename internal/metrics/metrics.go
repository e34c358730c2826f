// Package metrics exports scanner activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shinow/qrscan/scanner"
)

const namespace = "qrscan"

// Recorder implements scanner.Observer. It owns its registry so several
// recorders (one per test, say) never collide.
type Recorder struct {
	registry *prometheus.Registry

	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	state    *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Operation results by operation, outcome and error code.",
		}, []string{"op", "outcome", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from request to result.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"op"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current scan session state, 0 otherwise.",
		}, []string{"state"}),
	}
	r.registry.MustRegister(
		r.results, r.duration, r.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.ObserveState(scanner.StateIdle)
	return r
}

// Registry is served by the gateway's /metrics route.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func outcome(res scanner.Result) (string, string) {
	switch res.Kind {
	case scanner.KindPayload:
		return "payload", ""
	case scanner.KindImage:
		return "image", ""
	case scanner.KindError:
		code := ""
		if res.Err != nil {
			code = string(res.Err.Code)
		}
		return "error", code
	default:
		return "empty", ""
	}
}

func (r *Recorder) ObserveResult(op scanner.Op, res scanner.Result, elapsed time.Duration) {
	o, code := outcome(res)
	r.results.WithLabelValues(op.String(), o, code).Inc()
	r.duration.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveState(s scanner.State) {
	for _, st := range []scanner.State{scanner.StateIdle, scanner.StateAcquiring, scanner.StateLive, scanner.StateClosing} {
		v := 0.0
		if st == s {
			v = 1
		}
		r.state.WithLabelValues(st.String()).Set(v)
	}
}
