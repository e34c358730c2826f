package handler

import (
	"log/slog"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/scanner"
)

// ScanBytes detects a symbol in the base64 "bytes" image of the payload.
func ScanBytes(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.ScanBytesRequest
		if err := decode(req.Payload, &in); err != nil {
			return err
		}
		return scanReply(res, s.Dispatch(req.Ctx, scanner.Request{Op: scanner.OpScanBytes, Bytes: in.Bytes}))
	}
}

// ScanPath detects a symbol in the image file named by "path".
func ScanPath(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.ScanPathRequest
		if err := decode(req.Payload, &in); err != nil {
			return err
		}
		return scanReply(res, s.Dispatch(req.Ctx, scanner.Request{Op: scanner.OpScanPath, Path: in.Path}))
	}
}

// ScanPhoto presents the photo picker and scans the chosen image.
func ScanPhoto(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return scanReply(res, s.Dispatch(req.Ctx, scanner.Request{Op: scanner.OpScanPhoto}))
	}
}

// ScanLive runs a live camera scan. The reply is held until a symbol is
// detected, the session is closed, or the client disconnects.
func ScanLive(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.ScanLiveRequest
		if err := decode(req.Payload, &in); err != nil {
			return err
		}
		logger.Info("live scan requested", "width", in.Width, "height", in.Height)
		r := s.Dispatch(req.Ctx, scanner.Request{
			Op:       scanner.OpScanLive,
			Viewport: scanner.Viewport{Width: in.Width, Height: in.Height},
		})
		return scanReply(res, r)
	}
}
