package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // register camera driver
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/shinow/qrscan/scanner"
)

var ErrNoDevice = errors.New("no video input device")

// MediaConfig selects and sizes the camera.
type MediaConfig struct {
	Device string `help:"Camera device ID or label substring; empty picks the first video input" env:"QRSCAN_CAMERA_DEVICE"`
	Width  int    `help:"Requested capture width" default:"640" env:"QRSCAN_CAMERA_WIDTH"`
	Height int    `help:"Requested capture height" default:"480" env:"QRSCAN_CAMERA_HEIGHT"`
}

// Media is a scanner.Camera backed by the platform camera driver.
type Media struct {
	cfg      MediaConfig
	opts     Options
	detector scanner.ImageDetector
	logger   *slog.Logger
}

func NewMedia(cfg MediaConfig, opts Options, det scanner.ImageDetector, logger *slog.Logger) *Media {
	return &Media{cfg: cfg, opts: opts, detector: det, logger: logger}
}

// SelectDevice returns the configured device, or the first video input.
func (m *Media) SelectDevice(ctx context.Context) (scanner.Device, error) {
	if err := ctx.Err(); err != nil {
		return scanner.Device{}, err
	}
	var candidates []mediadevices.MediaDeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			candidates = append(candidates, d)
		}
	}
	m.logger.Debug("enumerated video inputs", "count", len(candidates))
	for _, d := range candidates {
		if m.cfg.Device == "" || d.DeviceID == m.cfg.Device || strings.Contains(d.Label, m.cfg.Device) {
			return scanner.Device{ID: d.DeviceID, Label: d.Label}, nil
		}
	}
	if m.cfg.Device != "" {
		return scanner.Device{}, fmt.Errorf("%w matching %q", ErrNoDevice, m.cfg.Device)
	}
	return scanner.Device{}, ErrNoDevice
}

func (m *Media) Open(ctx context.Context, dev scanner.Device) (scanner.CaptureInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(dev.ID)
			if m.cfg.Width > 0 {
				c.Width = prop.Int(m.cfg.Width)
			}
			if m.cfg.Height > 0 {
				c.Height = prop.Int(m.cfg.Height)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.ID, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("open %s: %w", dev.ID, ErrNoDevice)
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return nil, fmt.Errorf("open %s: unexpected track type %T", dev.ID, tracks[0])
	}
	src := &trackSource{track: vt, reader: vt.NewReader(false)}
	return newInput(src, m.detector, m.opts.Interval, m.logger.With("device", dev.Label)), nil
}

type trackSource struct {
	track  *mediadevices.VideoTrack
	reader video.Reader
}

func (s *trackSource) next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	img, release, err := s.reader.Read()
	if err != nil {
		return nil, nil, err
	}
	if release == nil {
		release = func() {}
	}
	return img, release, nil
}

func (s *trackSource) Close() error { return s.track.Close() }
