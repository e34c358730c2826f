package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/scanner"
)

// Scanner is the part of *scanner.Controller the handlers use.
type Scanner interface {
	Dispatch(ctx context.Context, req scanner.Request) scanner.Result
	Close(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) (scanner.Snapshot, error)
}

// decode unmarshals a JSON payload into v. An empty payload leaves v zero.
func decode(payload string, v any) error {
	if strings.TrimSpace(payload) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		ae := api.ErrBadRequest(fmt.Sprintf("invalid payload: %v", err))
		ae.Code = "INVALID_ARGUMENT"
		return ae
	}
	return nil
}

func marshal(res *api.Response, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return api.ErrInternal(fmt.Sprintf("failed to marshal response: %v", err))
	}
	res.JSON = string(b)
	return nil
}

// scanReply renders a scan result. Image results never come from scans.
func scanReply(res *api.Response, r scanner.Result) error {
	switch r.Kind {
	case scanner.KindError:
		return api.FromScanError(r.Err)
	case scanner.KindPayload:
		return marshal(res, apitypes.ScanResponse{Found: true, Payload: r.Payload})
	case scanner.KindEmpty:
		return marshal(res, apitypes.ScanResponse{Found: false})
	default:
		return api.ErrInternal(fmt.Sprintf("unexpected %s result", r.Kind))
	}
}
