// Package capture provides scanner.Camera implementations: Media drives a
// real camera through pion/mediadevices, Replay serves still images from a
// directory as if they were camera frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shinow/qrscan/scanner"
)

// Options shared by every camera backend.
type Options struct {
	Interval time.Duration `help:"Minimum time between frames handed to the detector" default:"100ms" env:"QRSCAN_CAPTURE_INTERVAL"`
}

// source yields frames. release must be called once the frame is no longer
// used.
type source interface {
	next(ctx context.Context) (img image.Image, release func(), err error)
	io.Closer
}

// input runs the frame loop shared by every backend: read a frame, run the
// detector over it, report hits to the bound output.
type input struct {
	src      source
	detector scanner.ImageDetector
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	onHit  func(string)
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	frames atomic.Uint64
}

func newInput(src source, det scanner.ImageDetector, interval time.Duration, logger *slog.Logger) *input {
	return &input{src: src, detector: det, interval: interval, logger: logger}
}

type binding struct {
	in   *input
	once sync.Once
}

func (b *binding) Close() error {
	b.once.Do(func() {
		b.in.mu.Lock()
		b.in.onHit = nil
		b.in.mu.Unlock()
	})
	return nil
}

func (in *input) BindOutput(sym scanner.Symbology, onHit func(string)) (io.Closer, error) {
	if sym != scanner.SymbologyQR {
		return nil, fmt.Errorf("unsupported symbology %q", sym)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.onHit != nil {
		return nil, errors.New("output already bound")
	}
	in.onHit = onHit
	return &binding{in: in}, nil
}

// Start reads the first frame synchronously so device errors surface here,
// then keeps the loop running in the background until ctx ends or Close.
func (in *input) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return errors.New("capture input closed")
	}
	if in.done != nil {
		in.mu.Unlock()
		return errors.New("capture already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.done = make(chan struct{})
	in.mu.Unlock()

	img, release, err := in.src.next(loopCtx)
	if err != nil {
		cancel()
		close(in.done)
		return fmt.Errorf("read first frame: %w", err)
	}
	go in.loop(loopCtx, img, release)
	return nil
}

func (in *input) loop(ctx context.Context, img image.Image, release func()) {
	defer close(in.done)
	var tick *time.Ticker
	if in.interval > 0 {
		tick = time.NewTicker(in.interval)
		defer tick.Stop()
	}
	for {
		in.process(ctx, img)
		release()

		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		var err error
		img, release, err = in.src.next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				in.logger.Warn("capture stopped", "error", err)
			}
			return
		}
	}
}

func (in *input) process(ctx context.Context, img image.Image) {
	in.frames.Add(1)
	payload, found, err := in.detector.Detect(ctx, img)
	if err != nil {
		in.logger.Debug("frame detection failed", "error", err)
		return
	}
	if !found {
		return
	}
	in.mu.Lock()
	f := in.onHit
	in.mu.Unlock()
	if f != nil {
		f(payload)
	}
}

// FrameCount returns the number of frames examined so far.
func (in *input) FrameCount() uint64 { return in.frames.Load() }

func (in *input) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	cancel, done := in.cancel, in.done
	in.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return in.src.Close()
}
