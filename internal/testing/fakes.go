package testing

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/shinow/qrscan/scanner"
)

// Tracker counts resources that were acquired and not yet released.
type Tracker struct {
	mu       sync.Mutex
	open     map[string]int
	released []string
}

func NewTracker() *Tracker { return &Tracker{open: map[string]int{}} }

func (t *Tracker) acquire(name string) {
	t.mu.Lock()
	t.open[name]++
	t.mu.Unlock()
}

func (t *Tracker) release(name string) {
	t.mu.Lock()
	t.open[name]--
	t.released = append(t.released, name)
	t.mu.Unlock()
}

// Open returns the number of unreleased resources of every kind.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.open {
		n += c
	}
	return n
}

// Released returns resource names in release order.
func (t *Tracker) Released() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.released...)
}

type handle struct {
	name string
	t    *Tracker
	once sync.Once
}

func (h *handle) Close() error {
	h.once.Do(func() { h.t.release(h.name) })
	return nil
}

func (t *Tracker) handle(name string) io.Closer {
	t.acquire(name)
	return &handle{name: name, t: t}
}

var ErrInjected = errors.New("injected failure")

// FakeCamera hands out FakeInputs. Fail names the step that should fail:
// "select", "open", "bind" or "start". When Hold is set SelectDevice blocks
// until it is closed, ignoring ctx like a device that is slow to answer.
type FakeCamera struct {
	Tracker *Tracker
	Fail    string
	Hold    chan struct{}

	mu     sync.Mutex
	inputs []*FakeInput
	opened chan *FakeInput
}

func NewFakeCamera(t *Tracker) *FakeCamera {
	return &FakeCamera{Tracker: t, opened: make(chan *FakeInput, 16)}
}

func (c *FakeCamera) SelectDevice(ctx context.Context) (scanner.Device, error) {
	if c.Hold != nil {
		<-c.Hold
	}
	if c.Fail == "select" {
		return scanner.Device{}, ErrInjected
	}
	return scanner.Device{ID: "fake0", Label: "Fake Camera"}, nil
}

func (c *FakeCamera) Open(ctx context.Context, dev scanner.Device) (scanner.CaptureInput, error) {
	if c.Fail == "open" {
		return nil, ErrInjected
	}
	in := &FakeInput{cam: c, started: make(chan struct{})}
	in.closer = c.Tracker.handle("capture")
	c.mu.Lock()
	c.inputs = append(c.inputs, in)
	c.mu.Unlock()
	c.opened <- in
	return in, nil
}

// Opened blocks until the next input is opened.
func (c *FakeCamera) Opened() <-chan *FakeInput { return c.opened }

// OpenCount is the number of inputs ever opened.
func (c *FakeCamera) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inputs)
}

// FakeInput is a capture input whose detections are driven by Hit.
type FakeInput struct {
	cam     *FakeCamera
	closer  io.Closer
	started chan struct{}

	mu    sync.Mutex
	onHit func(string)
}

func (in *FakeInput) BindOutput(sym scanner.Symbology, onHit func(string)) (io.Closer, error) {
	if in.cam.Fail == "bind" {
		return nil, ErrInjected
	}
	in.mu.Lock()
	in.onHit = onHit
	in.mu.Unlock()
	return in.cam.Tracker.handle("output"), nil
}

func (in *FakeInput) Start(ctx context.Context) error {
	if in.cam.Fail == "start" {
		return ErrInjected
	}
	close(in.started)
	return nil
}

// Started is closed once Start succeeded.
func (in *FakeInput) Started() <-chan struct{} { return in.started }

func (in *FakeInput) Close() error { return in.closer.Close() }

// Hit reports a detected payload as the device would.
func (in *FakeInput) Hit(payload string) {
	in.mu.Lock()
	f := in.onHit
	in.mu.Unlock()
	if f != nil {
		f(payload)
	}
}

// FakeSurface records attached UI. Fail names "preview" or "overlay" to
// make that attachment fail. Picks feeds PresentPicker; when it is nil the
// picker blocks until the request context ends.
type FakeSurface struct {
	Tracker *Tracker
	Fail    string
	Picks   chan scanner.Picked

	mu        sync.Mutex
	onClose   func()
	presented int
}

func NewFakeSurface(t *Tracker) *FakeSurface {
	return &FakeSurface{Tracker: t}
}

func (s *FakeSurface) AttachPreview(vp scanner.Viewport, in scanner.CaptureInput) (io.Closer, error) {
	if s.Fail == "preview" {
		return nil, ErrInjected
	}
	return s.Tracker.handle("preview"), nil
}

func (s *FakeSurface) AttachOverlay(vp scanner.Viewport, onClose func()) (io.Closer, error) {
	if s.Fail == "overlay" {
		return nil, ErrInjected
	}
	s.mu.Lock()
	s.onClose = onClose
	s.mu.Unlock()
	return s.Tracker.handle("overlay"), nil
}

// PressClose simulates the overlay close control.
func (s *FakeSurface) PressClose() {
	s.mu.Lock()
	f := s.onClose
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

func (s *FakeSurface) PresentPicker(ctx context.Context) (scanner.Picked, error) {
	s.mu.Lock()
	s.presented++
	s.mu.Unlock()
	if s.Picks == nil {
		<-ctx.Done()
		return scanner.Picked{}, ctx.Err()
	}
	select {
	case p := <-s.Picks:
		return p, nil
	case <-ctx.Done():
		return scanner.Picked{}, ctx.Err()
	}
}

// Presented counts picker presentations.
func (s *FakeSurface) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Resolver returns Surface, or reports none when it is nil.
type Resolver struct {
	Surface scanner.Surface
}

func (r Resolver) ActiveSurface() (scanner.Surface, bool) {
	return r.Surface, r.Surface != nil
}
