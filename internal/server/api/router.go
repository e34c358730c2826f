package api

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Request contains route parameters and the raw payload of the command.
type Request struct {
	Ctx     context.Context
	Params  map[string]string
	Payload string
}

// Response holds the JSON string to return to the client.
type Response struct {
	JSON string
}

// HandlerFunc processes a request and populates the response.
// Returns an error on failure; the caller logs and renders it. The logger is
// request-scoped.
type HandlerFunc func(req *Request, res *Response, logger *slog.Logger) error

// Router implements simple path pattern matching with placeholders in {name}.
type Router struct {
	routes []routeEntry
}

type routeEntry struct {
	pattern string
	parts   []string
	names   []string // original-case placeholder names, "" for literal parts
	handler HandlerFunc
}

// NewRouter returns a new Router instance.
func NewRouter() *Router { return &Router{} }

// Register registers a handler for a path pattern like "scan/{kind}".
func (r *Router) Register(pattern string, handler HandlerFunc) {
	orig := strings.Split(pattern, "/")
	e := routeEntry{
		pattern: strings.ToLower(pattern),
		parts:   strings.Split(strings.ToLower(pattern), "/"),
		names:   make([]string, len(orig)),
		handler: handler,
	}
	for i, p := range orig {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			e.names[i] = p[1 : len(p)-1]
		}
	}
	r.routes = append(r.routes, e)
}

// Match returns the HandlerFunc and params if the given path matches any
// registered pattern. Literal routes win over placeholder routes registered
// earlier. Returns nil if none match.
func (r *Router) Match(path string) (HandlerFunc, map[string]string) {
	parts := strings.Split(strings.ToLower(path), "/")
	var fallback *routeEntry
	var fallbackParams map[string]string
	for i := range r.routes {
		rt := &r.routes[i]
		if len(rt.parts) != len(parts) {
			continue
		}
		params := map[string]string{}
		ok := true
		for j := range parts {
			if rt.names[j] != "" {
				params[rt.names[j]] = parts[j]
				continue
			}
			if rt.parts[j] != parts[j] {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if len(params) == 0 {
			return rt.handler, params
		}
		if fallback == nil {
			fallback, fallbackParams = rt, params
		}
	}
	if fallback != nil {
		return fallback.handler, fallbackParams
	}
	return nil, nil
}

// Paths lists registered patterns in sorted order.
func (r *Router) Paths() []string {
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.pattern)
	}
	sort.Strings(out)
	return out
}

// Exec routes one request and returns the JSON body on success.
func (r *Router) Exec(ctx context.Context, path, payload string, logger *slog.Logger) (string, error) {
	if path == "" {
		return "", ErrBadRequest("empty path")
	}
	h, params := r.Match(path)
	if h == nil {
		return "", ErrNotFound(fmt.Sprintf("unknown path: %s", strings.ToLower(path)))
	}
	req := &Request{Ctx: ctx, Params: params, Payload: payload}
	res := &Response{}
	if err := h(req, res, logger); err != nil {
		return "", err
	}
	return res.JSON, nil
}
