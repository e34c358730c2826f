package handler

import (
	"log/slog"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/internal/server/api"
)

// Ping reports the server identity and version.
func Ping(version string) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return marshal(res, apitypes.PingResponse{Server: "qrscan", Version: version})
	}
}
