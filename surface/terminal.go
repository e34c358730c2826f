// Package surface presents the scanner on the controlling terminal.
//
// The terminal plays every UI role the controller needs: a status line stands
// in for the camera preview, raw-mode key handling provides the overlay's
// close control (q, Esc or Ctrl-C), and a numbered listing of a photo
// directory is the picker.
package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/shinow/qrscan/capture"
	"github.com/shinow/qrscan/scanner"
)

// Config selects and tunes the surface.
type Config struct {
	Mode           string        `help:"Where to present the scanner: auto uses the terminal when stdin is one" enum:"auto,terminal,none" default:"auto" env:"QRSCAN_SURFACE"`
	PhotoDir       string        `help:"Directory listed by the photo picker" env:"QRSCAN_PHOTO_DIR"`
	Bell           bool          `help:"Ring the terminal bell on a successful live scan" default:"true" negatable:"" env:"QRSCAN_BELL"`
	StatusInterval time.Duration `help:"Refresh interval of the live status line" default:"500ms" env:"QRSCAN_STATUS_INTERVAL"`
}

var ErrInputClosed = errors.New("terminal input closed")

type chunk struct {
	data []byte
	err  error
}

// Terminal implements scanner.Surface. One goroutine reads the input for
// the lifetime of the Terminal; callers take bytes from it one at a time, so
// the overlay, the picker and consent prompts never race for input.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	cfg    Config
	logger *slog.Logger

	pumpOnce sync.Once
	input    chan chunk

	mu      sync.Mutex
	pending []byte
	eof     error
}

func NewTerminal(in io.Reader, out io.Writer, cfg Config, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 500 * time.Millisecond
	}
	return &Terminal{in: in, out: out, cfg: cfg, logger: logger}
}

// fd returns the input's descriptor when it is a terminal.
func (t *Terminal) fd() (int, bool) {
	f, ok := t.in.(interface{ Fd() uintptr })
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// IsInteractive reports whether input is an actual terminal.
func (t *Terminal) IsInteractive() bool {
	_, ok := t.fd()
	return ok
}

func (t *Terminal) pump() {
	t.input = make(chan chunk)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := t.in.Read(buf)
			if n > 0 {
				t.input <- chunk{data: append([]byte(nil), buf[:n]...)}
			}
			if err != nil {
				t.input <- chunk{err: err}
				close(t.input)
				return
			}
		}
	}()
}

// readByte returns the next input byte, or ctx's error.
func (t *Terminal) readByte(ctx context.Context) (byte, error) {
	t.pumpOnce.Do(t.pump)
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.pending) == 0 {
		if t.eof != nil {
			return 0, t.eof
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case c, ok := <-t.input:
			switch {
			case !ok:
				t.eof = ErrInputClosed
			case c.err != nil:
				t.eof = fmt.Errorf("%w: %w", ErrInputClosed, c.err)
			default:
				t.pending = c.data
			}
		}
	}
	b := t.pending[0]
	t.pending = t.pending[1:]
	return b, nil
}

// ReadLine reads up to the next line break.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		b, err := t.readByte(ctx)
		if err != nil {
			if errors.Is(err, ErrInputClosed) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		if b == '\n' || b == '\r' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ticker runs fn every interval until the returned closer is called.
func ticker(interval time.Duration, fn func()) io.Closer {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return closerFunc(func() error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return nil
	})
}

// AttachPreview keeps a status line with the frame count up to date.
func (t *Terminal) AttachPreview(vp scanner.Viewport, in scanner.CaptureInput) (io.Closer, error) {
	counter, _ := in.(interface{ FrameCount() uint64 })
	start := time.Now()
	status := ticker(t.cfg.StatusInterval, func() {
		line := fmt.Sprintf("\rscanning %dx%d  %s", vp.Width, vp.Height, time.Since(start).Truncate(time.Second))
		if counter != nil {
			line += fmt.Sprintf("  frames %d", counter.FrameCount())
		}
		fmt.Fprint(t.out, line)
	})
	return closerFunc(func() error {
		err := status.Close()
		fmt.Fprint(t.out, "\r\n")
		return err
	}), nil
}

const (
	keyCtrlC = 0x03
	keyEsc   = 0x1b
)

// AttachOverlay prints the scan banner and watches for the close keys. The
// terminal is put in raw mode while the overlay is attached so single key
// presses arrive without Enter.
func (t *Terminal) AttachOverlay(vp scanner.Viewport, onClose func()) (io.Closer, error) {
	var restore func() error
	if fd, ok := t.fd(); ok {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("raw mode: %w", err)
		}
		restore = func() error { return term.Restore(fd, old) }
	}
	fmt.Fprint(t.out, "Point the camera at a QR code. Press q or Esc to cancel.\r\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			b, err := t.readByte(ctx)
			if err != nil {
				if ctx.Err() == nil {
					t.logger.Debug("overlay input ended", "error", err)
				}
				return
			}
			switch b {
			case 'q', 'Q', keyEsc, keyCtrlC:
				onClose()
				return
			}
		}
	}()

	var once sync.Once
	var err error
	return closerFunc(func() error {
		once.Do(func() {
			cancel()
			<-done
			if restore != nil {
				err = restore()
			}
		})
		return err
	}), nil
}

// PresentPicker lists the images of the photo directory and waits for a
// choice. An empty answer or q cancels.
func (t *Terminal) PresentPicker(ctx context.Context) (scanner.Picked, error) {
	if t.cfg.PhotoDir == "" {
		return scanner.Picked{}, errors.New("no photo directory configured")
	}
	entries, err := os.ReadDir(t.cfg.PhotoDir)
	if err != nil {
		return scanner.Picked{}, fmt.Errorf("photo directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && capture.IsImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintf(t.out, "No images in %s\n", t.cfg.PhotoDir)
		return scanner.Picked{Cancelled: true}, nil
	}

	for i, n := range names {
		fmt.Fprintf(t.out, "%3d) %s\n", i+1, n)
	}
	for {
		fmt.Fprintf(t.out, "Select an image [1-%d], empty to cancel: ", len(names))
		line, err := t.ReadLine(ctx)
		if err != nil {
			return scanner.Picked{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "q") {
			return scanner.Picked{Cancelled: true}, nil
		}
		i, err := strconv.Atoi(line)
		if err != nil || i < 1 || i > len(names) {
			fmt.Fprintf(t.out, "invalid choice %q\n", line)
			continue
		}
		name := names[i-1]
		data, err := os.ReadFile(filepath.Join(t.cfg.PhotoDir, name))
		if err != nil {
			return scanner.Picked{}, err
		}
		return scanner.Picked{Data: data, Name: name}, nil
	}
}
