package handler

import (
	"log/slog"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/internal/server/api"
)

// ScanClose ends the live session, if one is running.
func ScanClose(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		closed, err := s.Close(req.Ctx)
		if err != nil {
			return err
		}
		return marshal(res, apitypes.CloseResponse{Closed: closed})
	}
}

// Session reports the lifecycle state of the scanner.
func Session(s Scanner) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		snap, err := s.Snapshot(req.Ctx)
		if err != nil {
			return err
		}
		out := apitypes.SessionResponse{
			State:     snap.State.String(),
			SessionID: snap.SessionID,
			Active:    snap.Active,
		}
		if snap.Pending != 0 {
			out.Pending = snap.Pending.String()
		}
		return marshal(res, out)
	}
}

// Register wires every scanner route onto r.
func Register(r *api.Router, s Scanner, version string) {
	r.Register("ping", Ping(version))
	r.Register("generate", Generate(s))
	r.Register("scan/bytes", ScanBytes(s))
	r.Register("scan/path", ScanPath(s))
	r.Register("scan/photo", ScanPhoto(s))
	r.Register("scan/live", ScanLive(s))
	r.Register("scan/close", ScanClose(s))
	r.Register("session", Session(s))
}
