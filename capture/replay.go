package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/scanner"
)

var frameExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// IsImageFile reports whether name carries an image extension the detector
// can decode.
func IsImageFile(name string) bool {
	return slices.Contains(frameExts, strings.ToLower(filepath.Ext(name)))
}

// Replay is a scanner.Camera that plays the images of a directory, sorted
// by name, in a loop. Useful on headless hosts and in tests.
type Replay struct {
	dir      string
	opts     Options
	detector scanner.ImageDetector
	logger   *slog.Logger
}

func NewReplay(dir string, opts Options, det scanner.ImageDetector, logger *slog.Logger) *Replay {
	return &Replay{dir: dir, opts: opts, detector: det, logger: logger}
}

func (r *Replay) frames() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			out = append(out, filepath.Join(r.dir, e.Name()))
		}
	}
	return out, nil
}

func (r *Replay) SelectDevice(ctx context.Context) (scanner.Device, error) {
	if err := ctx.Err(); err != nil {
		return scanner.Device{}, err
	}
	files, err := r.frames()
	if err != nil {
		return scanner.Device{}, fmt.Errorf("replay directory: %w", err)
	}
	if len(files) == 0 {
		return scanner.Device{}, fmt.Errorf("%w: %s holds no images", ErrNoDevice, r.dir)
	}
	return scanner.Device{ID: "replay:" + r.dir, Label: filepath.Base(r.dir)}, nil
}

// Open decodes every frame up front so bad files fail here and not
// mid-session.
func (r *Replay) Open(ctx context.Context, dev scanner.Device) (scanner.CaptureInput, error) {
	files, err := r.frames()
	if err != nil {
		return nil, fmt.Errorf("replay directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s holds no images", ErrNoDevice, r.dir)
	}
	imgs := make([]image.Image, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, _, err := detect.LoadPath(f)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	r.logger.Debug("replay opened", "device", dev.ID, "frames", len(imgs))
	return newInput(&loopSource{frames: imgs}, r.detector, r.opts.Interval, r.logger), nil
}

type loopSource struct {
	frames []image.Image
	pos    int
}

// next is only called from the frame loop goroutine, or from Start before
// that goroutine exists.
func (s *loopSource) next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	img := s.frames[s.pos%len(s.frames)]
	s.pos++
	return img, func() {}, nil
}

func (s *loopSource) Close() error { return nil }
