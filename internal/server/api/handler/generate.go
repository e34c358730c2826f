package handler

import (
	"fmt"
	"log/slog"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/scanner"
)

// Generate renders the "code" text of the payload as a QR image.
func Generate(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.GenerateRequest
		if err := decode(req.Payload, &in); err != nil {
			return err
		}
		r := s.Dispatch(req.Ctx, scanner.Request{Op: scanner.OpGenerate, Text: in.Code})
		if r.Kind == scanner.KindError {
			return api.FromScanError(r.Err)
		}
		if r.Kind != scanner.KindImage || r.Image == nil {
			return api.ErrInternal(fmt.Sprintf("unexpected %s result", r.Kind))
		}
		logger.Debug("generated image", "format", r.Image.Format, "bytes", len(r.Image.Data))
		return marshal(res, apitypes.GenerateResponse{
			Image:  r.Image.Data,
			Format: r.Image.Format,
			Width:  r.Image.Width,
			Height: r.Image.Height,
		})
	}
}
