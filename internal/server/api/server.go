package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shinow/qrscan/internal/log"
	"github.com/shinow/qrscan/internal/server/api/auth"
)

// Server implements the TCP request/response API.
//
// Request framing: `<path>[ SP <payload>]\x00`. The reply is a single JSON
// line, after which the server closes the connection. A client that hangs up
// before the reply cancels the request context, which ends any live scan the
// request started.
type Server struct {
	addr    string
	ln      net.Listener
	logger  *slog.Logger
	raw     log.RawLogger
	router  *Router
	config  ServerConfig
	limiter *rate.Limiter
	key     []byte

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

var pathSplit = regexp.MustCompile(`\s`)

// New creates a new API server. Call Start to begin listening.
func New(config ServerConfig, logger *slog.Logger, raw log.RawLogger) (*Server, error) {
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	a := &Server{
		addr:   config.Addr,
		logger: logger,
		raw:    raw,
		router: NewRouter(),
		config: config,
		conns:  map[net.Conn]struct{}{},
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	if config.Password != "" {
		key, err := auth.DeriveKey(config.Password)
		if err != nil {
			return nil, fmt.Errorf("derive api key: %w", err)
		}
		a.key = key
	}
	return a, nil
}

// Router returns the router used by the API server so callers can register handlers.
func (a *Server) Router() *Router { return a.router }

// Config returns the server configuration.
func (a *Server) Config() ServerConfig { return a.config }

// Addr returns the bound listener address, or nil before Start.
func (a *Server) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Start listens on the configured address and serves incoming API commands.
func (a *Server) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.ln = ln
	a.logger.Info("API listening", "addr", ln.Addr().String(), "auth", a.key != nil)
	a.wg.Add(1)
	go a.serve()
	return nil
}

// Close stops accepting, drops open connections and waits for their
// handlers to return.
func (a *Server) Close() {
	if a.ln != nil {
		_ = a.ln.Close()
	}
	a.mu.Lock()
	for c := range a.conns {
		_ = c.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Server) serve() {
	defer a.wg.Done()
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				a.logger.Info("API server stopped")
				return
			}
			a.logger.Error("API accept error", "error", err)
			return
		}
		a.mu.Lock()
		a.conns[c] = struct{}{}
		a.mu.Unlock()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.handleConn(c)
			a.mu.Lock()
			delete(a.conns, c)
			a.mu.Unlock()
		}()
	}
}

func (a *Server) writeError(w io.Writer, remote string, err error) {
	problemJSON, _ := json.Marshal(WrapError(err))
	a.write(w, remote, string(problemJSON))
}

func (a *Server) write(w io.Writer, remote, body string) {
	line := []byte(body + "\n")
	a.raw.Log(false, remote, line)
	_, _ = w.Write(line)
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}

func (a *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	connLogger := a.logger.With("remote", remote, "request", uuid.NewString())

	if a.config.RequestTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.config.RequestTimeout))
	}

	var rw io.ReadWriter = conn
	r := bufio.NewReader(conn)
	if a.key != nil {
		isAuth, err := auth.IsAuthHandshake(r)
		switch {
		case err != nil && !isAuth && len(peeked(r)) == 0:
			connLogger.Debug("api connection closed before request", "error", err)
			return
		case isAuth:
			sessionKey, err := auth.ServerHandshake(r, conn, a.key)
			if err != nil {
				connLogger.Warn("api auth failed", "error", err)
				a.writeError(conn, remote, err)
				return
			}
			sealed, err := auth.WrapConn(conn, sessionKey)
			if err != nil {
				connLogger.Error("api seal connection", "error", err)
				return
			}
			rw = sealed
			r = bufio.NewReader(sealed)
		case a.config.RequireAuth && !isLoopback(conn.RemoteAddr()):
			connLogger.Warn("api unauthenticated remote client")
			a.writeError(conn, remote, ErrUnauthorized("authentication required"))
			return
		}
	}

	reqData, err := readFrame(r, a.maxRequest())
	if err != nil {
		if errors.Is(err, errFrameTooLarge) {
			connLogger.Warn("api request too large", "limit", a.maxRequest())
			a.writeError(rw, remote, ErrPayloadTooLarge(fmt.Sprintf("request exceeds %d bytes", a.maxRequest())))
			drain(conn, r)
			return
		}
		if err == io.EOF {
			connLogger.Error("api incomplete request (no null terminator)")
		} else {
			connLogger.Error("read api data", "error", err)
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	a.raw.Log(true, remote, []byte(reqData))
	reqData = strings.TrimSuffix(reqData, "\x00")

	// checked after the frame is read so the client always gets the reply
	if a.limiter != nil && !a.limiter.Allow() {
		connLogger.Warn("api rate limited")
		a.writeError(rw, remote, ErrTooManyRequests("request rate exceeded"))
		return
	}

	if reqData == "" {
		connLogger.Error("api empty command")
		a.writeError(rw, remote, ErrBadRequest("empty request"))
		return
	}

	path, payload := reqData, ""
	if loc := pathSplit.FindStringIndex(reqData); loc != nil {
		path, payload = reqData[:loc[0]], reqData[loc[1]:]
	}
	if path == "" {
		connLogger.Error("api empty path")
		a.writeError(rw, remote, ErrBadRequest("empty path"))
		return
	}
	path = strings.ToLower(path)
	connLogger = connLogger.With("path", path)
	connLogger.Info("api cmd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchHangup(r, cancel)

	body, err := a.router.Exec(ctx, path, payload, connLogger)
	if err != nil {
		connLogger.Error("api handler error", "error", err)
		a.writeError(rw, remote, err)
		return
	}
	connLogger.Debug("api handler success")
	a.write(rw, remote, body)
}

var errFrameTooLarge = errors.New("request frame too large")

func (a *Server) maxRequest() int {
	if a.config.MaxRequestSize > 0 {
		return a.config.MaxRequestSize
	}
	return auth.MaxFrameSize
}

// readFrame reads up to and including the \x00 terminator. A frame longer
// than limit fails with errFrameTooLarge once limit bytes are buffered.
func readFrame(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\x00')
		buf = append(buf, chunk...)
		if len(buf) > limit {
			return "", errFrameTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), err
	}
}

// drain discards the rest of an oversized frame so closing the connection
// does not reset it before the client reads the reply.
func drain(conn net.Conn, r *bufio.Reader) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, err := r.ReadSlice('\x00'); !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}

// peeked returns whatever the reader already buffered.
func peeked(r *bufio.Reader) []byte {
	b, _ := r.Peek(r.Buffered())
	return b
}

// watchHangup cancels once the client side of the connection goes away. The
// protocol sends nothing after the request frame, so any read error means the
// client hung up (or the server closed the conn after replying).
func watchHangup(r io.Reader, cancel context.CancelFunc) {
	buf := make([]byte, 64)
	for {
		if _, err := r.Read(buf); err != nil {
			cancel()
			return
		}
	}
}
