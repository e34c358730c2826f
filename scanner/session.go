package scanner

import (
	"context"
	"io"
	"log/slog"
)

// session holds the resources of one live scan. Fields are filled in
// acquisition order and released in reverse.
type session struct {
	id     string
	ticket uint64
	active bool

	capture CaptureInput
	output  io.Closer
	preview io.Closer
	overlay io.Closer

	cancel context.CancelFunc
}

func (s *session) release(logger *slog.Logger) {
	s.active = false
	if s.cancel != nil {
		s.cancel()
	}
	closeLogged(logger, "overlay", s.overlay)
	closeLogged(logger, "preview", s.preview)
	closeLogged(logger, "output", s.output)
	closeLogged(logger, "capture", s.capture)
	s.overlay, s.preview, s.output, s.capture = nil, nil, nil, nil
}

func closeLogged(logger *slog.Logger, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("release failed", "resource", name, "error", err)
	}
}
