package apitypes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ApiError represents an RFC 7807 (problem+json) error response.
type ApiError struct {
	// Status is the HTTP-style status code (e.g., 400, 403, 409, 500)
	Status int `json:"status"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Detail is a human-readable explanation specific to this occurrence
	Detail string `json:"detail"`
	// Code is the machine-readable scanner error code (e.g. "CAMERA_DENIED").
	Code string `json:"code,omitempty"`
}

func (e ApiError) Error() string {
	if e.Status == 0 && e.Title == "" {
		return "unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.Code != "" {
		return fmt.Sprintf("%d %s [%s]: %s", e.Status, e.Title, e.Code, e.Detail)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

// --

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

type GenerateRequest struct {
	Code string `json:"code"`
}

// GenerateResponse carries the encoded image; Image is base64 on the wire.
type GenerateResponse struct {
	Image  []byte `json:"image"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ScanBytesRequest struct {
	Bytes []byte `json:"bytes"`
}

type ScanPathRequest struct {
	Path string `json:"path"`
}

// ScanResponse is returned by every scan operation. Found is false when no
// symbol was detected or the user cancelled.
type ScanResponse struct {
	Found   bool   `json:"found"`
	Payload string `json:"payload,omitempty"`
}

type ScanLiveRequest struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// UnmarshalJSON accepts the viewport dimensions as JSON numbers or numeric
// strings (e.g. 640 or "640").
func (r *ScanLiveRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Width  any `json:"width,omitempty"`
		Height any `json:"height,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if r.Width, err = parseDimension(raw.Width); err != nil {
		return fmt.Errorf("width: %w", err)
	}
	if r.Height, err = parseDimension(raw.Height); err != nil {
		return fmt.Errorf("height: %w", err)
	}
	return nil
}

func parseDimension(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if val < 0 || val > 1<<16 || val != float64(int(val)) {
			return 0, fmt.Errorf("invalid dimension %v", val)
		}
		return int(val), nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid dimension %q: %w", val, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected number or numeric string, got %T", v)
	}
}

type CloseResponse struct {
	Closed bool `json:"closed"`
}

type SessionResponse struct {
	State     string `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
	Active    bool   `json:"active"`
	Pending   string `json:"pending,omitempty"`
}
