package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apitypes "github.com/shinow/qrscan/apitypes"
)

// Client provides a high-level interface to the qrscan API, handling request
// formatting, response parsing, and error handling.
type Client struct{ transport *Transport }

// New constructs a high-level API client using the internal low-level Transport.
// The addr parameter specifies the TCP address (host:port) of the qrscan API server.
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithPassword constructs a client that authenticates with the given password.
func NewWithPassword(addr, password string) *Client {
	return &Client{transport: NewTransportWithPassword(addr, password)}
}

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport implementation.
// This is primarily useful for testing or when advanced transport configuration is needed.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Ping returns the version and identity of the qrscan server.
func (c *Client) Ping() (*apitypes.PingResponse, error) {
	return c.PingCtx(context.Background())
}

// PingCtx is the context-aware version of Ping.
func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingResponse, error) {
	const path = "ping"
	raw, err := c.transport.DoCtx(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.PingResponse](raw)
}

// Generate renders code as a QR image.
func (c *Client) Generate(code string) (*apitypes.GenerateResponse, error) {
	return c.GenerateCtx(context.Background(), code)
}

func (c *Client) GenerateCtx(ctx context.Context, code string) (*apitypes.GenerateResponse, error) {
	const path = "generate"
	raw, err := c.transport.DoCtx(ctx, path, apitypes.GenerateRequest{Code: code}, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.GenerateResponse](raw)
}

// ScanBytes detects a symbol in an encoded image.
func (c *Client) ScanBytes(data []byte) (*apitypes.ScanResponse, error) {
	return c.ScanBytesCtx(context.Background(), data)
}

func (c *Client) ScanBytesCtx(ctx context.Context, data []byte) (*apitypes.ScanResponse, error) {
	const path = "scan/bytes"
	raw, err := c.transport.DoCtx(ctx, path, apitypes.ScanBytesRequest{Bytes: data}, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ScanResponse](raw)
}

// ScanPath detects a symbol in an image file on the server host. Plain
// paths and file:// URIs are accepted.
func (c *Client) ScanPath(path string) (*apitypes.ScanResponse, error) {
	return c.ScanPathCtx(context.Background(), path)
}

func (c *Client) ScanPathCtx(ctx context.Context, imagePath string) (*apitypes.ScanResponse, error) {
	const path = "scan/path"
	raw, err := c.transport.DoCtx(ctx, path, apitypes.ScanPathRequest{Path: imagePath}, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ScanResponse](raw)
}

// ScanPhotoCtx asks the server to present its photo picker and waits for the
// user's choice. Cancelling ctx hangs up and dismisses the picker.
func (c *Client) ScanPhotoCtx(ctx context.Context) (*apitypes.ScanResponse, error) {
	const path = "scan/photo"
	raw, err := c.transport.DoInteractive(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ScanResponse](raw)
}

// ScanLiveCtx runs a live camera scan on the server and waits for a symbol,
// a close, or the end of ctx. Cancelling ctx tears the session down.
func (c *Client) ScanLiveCtx(ctx context.Context, width, height int) (*apitypes.ScanResponse, error) {
	const path = "scan/live"
	var payload any
	if width > 0 || height > 0 {
		payload = apitypes.ScanLiveRequest{Width: width, Height: height}
	}
	raw, err := c.transport.DoInteractive(ctx, path, payload, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ScanResponse](raw)
}

// Close ends a running live scan. Closed is false when none was running.
func (c *Client) Close() (*apitypes.CloseResponse, error) {
	return c.CloseCtx(context.Background())
}

func (c *Client) CloseCtx(ctx context.Context) (*apitypes.CloseResponse, error) {
	const path = "scan/close"
	raw, err := c.transport.DoCtx(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.CloseResponse](raw)
}

// Session reports the scanner's lifecycle state.
func (c *Client) Session() (*apitypes.SessionResponse, error) {
	return c.SessionCtx(context.Background())
}

func (c *Client) SessionCtx(ctx context.Context) (*apitypes.SessionResponse, error) {
	const path = "session"
	raw, err := c.transport.DoCtx(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.SessionResponse](raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem apitypes.ApiError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
