package scanner

//go:generate mockgen -destination=mock_scanner/mock_scanner.go -package=mock_scanner github.com/shinow/qrscan/scanner Authority,Feedback

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/shinow/qrscan/qrgen"
)

// Authority answers and requests permission for a Capability.
type Authority interface {
	// Status returns the current decision without prompting.
	Status(ctx context.Context, c Capability) (Decision, error)
	// Request shows a consent prompt and blocks until it is answered or
	// ctx ends.
	Request(ctx context.Context, c Capability) (granted bool, err error)
}

// Camera selects and opens capture devices.
type Camera interface {
	SelectDevice(ctx context.Context) (Device, error)
	// Open binds the device as a capture input. The input is not running
	// until Start is called.
	Open(ctx context.Context, dev Device) (CaptureInput, error)
}

// CaptureInput is an opened capture device.
type CaptureInput interface {
	// BindOutput attaches a detection output reporting decoded symbols of sym
	// to onHit. onHit may be called from any goroutine, any number of times.
	BindOutput(sym Symbology, onHit func(payload string)) (io.Closer, error)
	// Start begins frame delivery and returns once the device is running.
	Start(ctx context.Context) error
	// Close stops the device and releases it.
	Close() error
}

// Picked is the outcome of a picker presentation.
type Picked struct {
	Data      []byte
	Name      string
	Cancelled bool
}

// Surface hosts scanner UI: the live preview, the overlay with its close
// control, and the photo picker.
type Surface interface {
	AttachPreview(vp Viewport, in CaptureInput) (io.Closer, error)
	// AttachOverlay shows the scan window. onClose is invoked when the user
	// dismisses it.
	AttachOverlay(vp Viewport, onClose func()) (io.Closer, error)
	PresentPicker(ctx context.Context) (Picked, error)
}

// SurfaceResolver finds the surface that is active right now. The controller
// calls it at the moment a surface is needed and never caches the answer.
type SurfaceResolver interface {
	ActiveSurface() (Surface, bool)
}

// Feedback acknowledges a successful live detection (haptic, sound, ...).
type Feedback interface {
	Success()
}

// ImageDetector finds a symbol in a decoded image.
type ImageDetector interface {
	Detect(ctx context.Context, img image.Image) (payload string, found bool, err error)
}

// ImageDecoder turns encoded images, in memory or on disk, into pixels.
type ImageDecoder interface {
	DecodeBytes(data []byte) (img image.Image, format string, err error)
	LoadPath(path string) (img image.Image, format string, err error)
}

// Generator renders text as a symbol image.
type Generator interface {
	Generate(ctx context.Context, text string) (*qrgen.Image, error)
}

// Observer receives operational signals; see internal/metrics.
type Observer interface {
	ObserveResult(op Op, res Result, elapsed time.Duration)
	ObserveState(s State)
}

type nopObserver struct{}

func (nopObserver) ObserveResult(Op, Result, time.Duration) {}
func (nopObserver) ObserveState(State)                      {}

type nopFeedback struct{}

func (nopFeedback) Success() {}

type noSurfaces struct{}

func (noSurfaces) ActiveSurface() (Surface, bool) { return nil, false }

// openAuthority grants everything; used when no Authority is configured.
type openAuthority struct{}

func (openAuthority) Status(context.Context, Capability) (Decision, error) {
	return DecisionGranted, nil
}

func (openAuthority) Request(context.Context, Capability) (bool, error) { return true, nil }
