// Package gateway exposes the API router over HTTP.
//
// POST /api/<path> carries the same payload a TCP client would send after
// the path, and the reply body is the same JSON document. Failures are
// problem+json with the problem's status as the HTTP status. A client that
// drops the HTTP request cancels it, exactly like a TCP hang-up.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/internal/server/api/auth"
)

// Config for the HTTP listener.
type Config struct {
	Addr        string `help:"HTTP gateway listen address (empty disables the gateway)" env:"QRSCAN_HTTP_ADDR"`
	AllowOrigin string `help:"Access-Control-Allow-Origin sent by the gateway" default:"*" env:"QRSCAN_HTTP_ALLOW_ORIGIN"`
	Metrics     bool   `help:"Serve Prometheus metrics on /metrics" default:"true" negatable:"" env:"QRSCAN_HTTP_METRICS"`
	Password    string `kong:"-"`
}

type Gateway struct {
	cfg      Config
	router   *api.Router
	registry *prometheus.Registry
	logger   *slog.Logger

	srv *http.Server
	ln  net.Listener
}

// New returns a gateway over router. registry may be nil.
func New(cfg Config, router *api.Router, registry *prometheus.Registry, logger *slog.Logger) *Gateway {
	return &Gateway{cfg: cfg, router: router, registry: registry, logger: logger}
}

// Handler builds the HTTP routes.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(g.cors)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/{path:.+}", g.exec).Methods(http.MethodPost, http.MethodGet, http.MethodOptions)
	if g.cfg.Metrics && g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (g *Gateway) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", g.cfg.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) authorized(r *http.Request) bool {
	if g.cfg.Password == "" {
		return true
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return true
		}
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.Password)) == 1
}

func (g *Gateway) exec(w http.ResponseWriter, r *http.Request) {
	path := strings.ToLower(mux.Vars(r)["path"])
	logger := g.logger.With("remote", r.RemoteAddr, "request", uuid.NewString(), "path", path, "transport", "http")

	if !g.authorized(r) {
		logger.Warn("http unauthenticated client")
		writeProblem(w, api.ErrUnauthorized("authentication required"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, auth.MaxFrameSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, api.ErrBadRequest("request body too large"))
			return
		}
		writeProblem(w, api.ErrBadRequest("failed to read request body"))
		return
	}

	logger.Info("api cmd")
	out, err := g.router.Exec(r.Context(), path, string(body), logger)
	if err != nil {
		logger.Error("api handler error", "error", err)
		writeProblem(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, out+"\n")
}

func writeProblem(w http.ResponseWriter, err error) {
	p := api.WrapError(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Start listens and serves in the background.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return err
	}
	g.ln = ln
	g.srv = &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.logger.Info("HTTP gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("HTTP gateway stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Close shuts down the server. Requests still running when ctx expires are
// cut off, which cancels any live scan they hold.
func (g *Gateway) Close(ctx context.Context) error {
	if g.srv == nil {
		return nil
	}
	if err := g.srv.Shutdown(ctx); err != nil {
		_ = g.srv.Close()
		return err
	}
	return nil
}
