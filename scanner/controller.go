// Package scanner owns the scan-session lifecycle.
//
// A Controller serializes every interactive request and every callback from
// its collaborators (permission prompts, pickers, capture devices, overlays)
// through one goroutine. That goroutine alone reads and writes the session
// state, so the state needs no locks and callbacks that arrive late, after the
// session they belong to was torn down, are recognised and dropped.
//
// Stateless operations (generate, scan of bytes or of a path) never touch the
// session and run on the caller's goroutine.
//
// Acquiring a live session opens the capture device and attaches the preview
// and overlay off the loop, so Snapshot reports StateAcquiring meanwhile and
// an abandoned acquisition is released as soon as it completes.
//
// Only one interactive operation (photo pick or live scan) may be pending at
// a time. A second one is rejected with BUSY rather than queued or allowed to
// supersede the first.
package scanner

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/internal/log"
	"github.com/shinow/qrscan/scanerr"
)

// Options wires a Controller to its collaborators. Nil fields get inert
// defaults: no surface, no feedback, permissions always granted, and the
// default detect.Decoder.
type Options struct {
	Authority Authority
	Camera    Camera
	Surfaces  SurfaceResolver
	Feedback  Feedback
	Detector  ImageDetector
	Decoder   ImageDecoder
	Generator Generator
	Observer  Observer
	Logger    *slog.Logger
}

// Controller processes requests. Create one with New and release it with
// Shutdown.
type Controller struct {
	authority Authority
	camera    Camera
	surfaces  SurfaceResolver
	feedback  Feedback
	detector  ImageDetector
	decoder   ImageDecoder
	generator Generator
	observer  Observer
	logger    *slog.Logger

	inbox    chan any
	acquired chan acquiredEvent
	quit     chan struct{}
	stopped  chan struct{}
	quitOnce sync.Once

	// owned by the run loop
	state     State
	ticket    uint64
	acquiring uint64
	pending   *pending
	session   *session
}

type pending struct {
	ticket uint64
	req    Request
	ctx    context.Context
	reply  chan Result
	logger *slog.Logger
}

type (
	dispatchEvent struct {
		ctx   context.Context
		req   Request
		reply chan Result
	}
	abandonEvent struct {
		reply chan Result
		err   error
	}
	permissionEvent struct {
		ticket  uint64
		granted bool
		err     error
	}
	pickedEvent struct {
		ticket uint64
		picked Picked
		err    error
	}
	detectedEvent struct {
		ticket uint64
		res    Result
	}
	acquiredEvent struct {
		ticket  uint64
		session *session
		ctx     context.Context
		device  string
		err     *scanerr.Error
	}
	startedEvent struct {
		ticket uint64
		err    error
	}
	hitEvent struct {
		ticket  uint64
		payload string
	}
	closeEvent struct {
		// ticket is zero for API-initiated closes, which target whatever
		// session is live.
		ticket uint64
		reply  chan bool
	}
	snapshotEvent struct {
		reply chan Snapshot
	}
)

const inboxSize = 64

// New starts a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		authority: opts.Authority,
		camera:    opts.Camera,
		surfaces:  opts.Surfaces,
		feedback:  opts.Feedback,
		detector:  opts.Detector,
		decoder:   opts.Decoder,
		generator: opts.Generator,
		observer:  opts.Observer,
		logger:    opts.Logger,
		inbox:     make(chan any, inboxSize),
		acquired:  make(chan acquiredEvent),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if c.authority == nil {
		c.authority = openAuthority{}
	}
	if c.surfaces == nil {
		c.surfaces = noSurfaces{}
	}
	if c.feedback == nil {
		c.feedback = nopFeedback{}
	}
	if c.decoder == nil {
		c.decoder = detect.Decoder{MaxPixels: detect.DefaultMaxPixels}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	go c.run()
	return c
}

// Dispatch runs req and returns its single result. Interactive operations
// block until the user finishes, the session is closed, or ctx ends. When ctx
// ends first any live session is torn down and the result is discarded.
func (c *Controller) Dispatch(ctx context.Context, req Request) Result {
	start := time.Now()
	var res Result
	switch req.Op {
	case OpGenerate:
		res = c.generate(ctx, req)
	case OpScanBytes:
		res = c.scanBytes(ctx, req)
	case OpScanPath:
		res = c.scanPath(ctx, req)
	case OpScanPhoto, OpScanLive:
		res = c.interactive(ctx, req)
	default:
		res = failure(scanerr.New(scanerr.CodeInvalidArgument, "dispatch", "unknown operation "+req.Op.String()))
	}
	c.observer.ObserveResult(req.Op, res, time.Since(start))
	return res
}

// Close ends the live session, if any, delivering an empty result to the
// pending live scan. It reports whether a session was closed; closing when
// nothing is live is a no-op.
func (c *Controller) Close(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	if !c.post(closeEvent{reply: reply}) {
		return false, errStopped("close")
	}
	select {
	case closed := <-reply:
		return closed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.stopped:
		return false, errStopped("close")
	}
}

// Snapshot reports the current lifecycle state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !c.post(snapshotEvent{reply: reply}) {
		return Snapshot{}, errStopped("session")
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.stopped:
		return Snapshot{}, errStopped("session")
	}
}

// Shutdown tears down any live session, fails the pending request with
// UNAVAILABLE and stops the run loop. It is safe to call more than once.
func (c *Controller) Shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
	<-c.stopped
}

func errStopped(op string) *scanerr.Error {
	return scanerr.New(scanerr.CodeUnavailable, op, "scanner is shut down")
}

// post hands ev to the run loop. It returns false once the loop has stopped.
func (c *Controller) post(ev any) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Controller) interactive(ctx context.Context, req Request) Result {
	reply := make(chan Result, 1)
	if !c.post(dispatchEvent{ctx: ctx, req: req, reply: reply}) {
		return failure(errStopped(req.Op.String()))
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		c.post(abandonEvent{reply: reply, err: ctx.Err()})
		// the loop may have finished the request before seeing the abandon
		select {
		case res := <-reply:
			return res
		default:
		}
		return Failed(req.Op.String(), scanerr.CodeUnavailable, ctx.Err())
	case <-c.stopped:
		select {
		case res := <-reply:
			return res
		default:
			return failure(errStopped(req.Op.String()))
		}
	}
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case ev := <-c.inbox:
			c.handle(ev)
		case ev := <-c.acquired:
			c.onAcquired(ev)
		case <-c.quit:
			c.stop()
			return
		}
	}
}

func (c *Controller) stop() {
	if c.session != nil {
		c.teardown()
	}
	if c.acquiring != 0 {
		// the acquiring goroutine releases what it opened once stopped closes
		c.acquiring = 0
		c.setState(StateIdle)
	}
	if p := c.pending; p != nil {
		c.finish(p, failure(errStopped(p.req.Op.String())))
	}
	c.logger.Debug("scanner stopped")
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case dispatchEvent:
		c.onDispatch(ev)
	case abandonEvent:
		c.onAbandon(ev)
	case permissionEvent:
		c.onPermission(ev)
	case pickedEvent:
		c.onPicked(ev)
	case detectedEvent:
		if p := c.current(ev.ticket); p != nil {
			c.finish(p, ev.res)
		}
	case startedEvent:
		c.onStarted(ev)
	case hitEvent:
		c.onHit(ev)
	case closeEvent:
		c.onClose(ev)
	case snapshotEvent:
		snap := Snapshot{State: c.state}
		if c.session != nil {
			snap.SessionID = c.session.id
			snap.Active = c.session.active
		}
		if c.pending != nil {
			snap.Pending = c.pending.req.Op
		}
		ev.reply <- snap
	default:
		c.logger.Error("unknown scanner event", "type", fmt.Sprintf("%T", ev))
	}
}

// current returns the pending request if ticket still refers to it.
func (c *Controller) current(ticket uint64) *pending {
	if c.pending == nil || c.pending.ticket != ticket {
		return nil
	}
	return c.pending
}

func (c *Controller) finish(p *pending, res Result) {
	if c.pending != p {
		return
	}
	c.pending = nil
	p.logger.Debug("request finished", "result", res.Kind.String())
	p.reply <- res
}

func (c *Controller) setState(to State) {
	if to == c.state {
		return
	}
	if !CanTransition(c.state, to) {
		c.logger.Error("invalid session transition", "from", c.state.String(), "to", to.String())
	}
	c.logger.Log(context.Background(), log.LevelTrace, "session state", "from", c.state.String(), "to", to.String())
	c.state = to
	c.observer.ObserveState(to)
}

func (c *Controller) onDispatch(ev dispatchEvent) {
	op := ev.req.Op.String()
	if c.pending != nil {
		ev.reply <- failure(scanerr.New(scanerr.CodeBusy, op,
			"another scan is in progress ("+c.pending.req.Op.String()+")"))
		return
	}
	c.ticket++
	p := &pending{
		ticket: c.ticket,
		req:    ev.req,
		ctx:    ev.ctx,
		reply:  ev.reply,
		logger: c.logger.With("op", op, "ticket", c.ticket),
	}
	c.pending = p
	p.logger.Debug("request accepted")
	c.gate(p)
}

func capabilityFor(op Op) Capability {
	if op == OpScanLive {
		return CapabilityCamera
	}
	return CapabilityPhotoLibrary
}

// gate checks permission for p. Granted proceeds, not-determined prompts
// once asynchronously, anything else fails without prompting.
func (c *Controller) gate(p *pending) {
	capability := capabilityFor(p.req.Op)
	decision, err := c.authority.Status(p.ctx, capability)
	if err != nil {
		c.finish(p, failure(scanerr.Wrapf(scanerr.CodePermissionDenied, p.req.Op.String(), err,
			"unable to determine %s permission", capability)))
		return
	}
	switch decision {
	case DecisionGranted:
		c.proceed(p)
	case DecisionNotDetermined:
		p.logger.Info("requesting permission", "capability", capability.String())
		ticket, ctx := p.ticket, p.ctx
		go func() {
			granted, err := c.authority.Request(ctx, capability)
			c.post(permissionEvent{ticket: ticket, granted: granted, err: err})
		}()
	default:
		c.finish(p, failure(denied(p.req.Op, capability)))
	}
}

func denied(op Op, capability Capability) *scanerr.Error {
	if capability == CapabilityCamera {
		return scanerr.New(scanerr.CodePermissionDenied, op.String(), "camera permission denied")
	}
	return scanerr.New(scanerr.CodePermissionDenied, op.String(), "photo library permission denied")
}

func (c *Controller) onPermission(ev permissionEvent) {
	p := c.current(ev.ticket)
	if p == nil {
		c.logger.Debug("dropping stale permission answer", "ticket", ev.ticket)
		return
	}
	if ev.err != nil {
		p.logger.Warn("permission prompt failed", "error", ev.err)
	}
	if !ev.granted || ev.err != nil {
		if p.req.Op == OpScanLive {
			c.finish(p, failure(scanerr.New(scanerr.CodeCameraDenied, p.req.Op.String(), "camera permission required")))
			return
		}
		c.finish(p, failure(denied(p.req.Op, CapabilityPhotoLibrary)))
		return
	}
	c.proceed(p)
}

func (c *Controller) proceed(p *pending) {
	switch p.req.Op {
	case OpScanLive:
		c.acquire(p)
	case OpScanPhoto:
		c.pick(p)
	}
}

func (c *Controller) pick(p *pending) {
	surface, ok := c.surfaces.ActiveSurface()
	if !ok {
		c.finish(p, failure(scanerr.New(scanerr.CodeUnavailable, p.req.Op.String(), "no active surface to present the picker")))
		return
	}
	ticket, ctx := p.ticket, p.ctx
	go func() {
		picked, err := surface.PresentPicker(ctx)
		c.post(pickedEvent{ticket: ticket, picked: picked, err: err})
	}()
}

func (c *Controller) onPicked(ev pickedEvent) {
	p := c.current(ev.ticket)
	if p == nil {
		c.logger.Debug("dropping stale picker result", "ticket", ev.ticket)
		return
	}
	const op = "scan.photo"
	switch {
	case ev.err != nil:
		c.finish(p, Failed(op, scanerr.CodeUnavailable, ev.err))
	case ev.picked.Cancelled:
		c.finish(p, Empty())
	default:
		ticket, ctx, data := p.ticket, p.ctx, ev.picked.Data
		go func() {
			res := c.detectBytes(ctx, op, data)
			if res.Kind == KindError && res.Err.Code == scanerr.CodeInvalidImage {
				res = failure(scanerr.Wrapf(scanerr.CodeInvalidImage, op, res.Err, "failed to process selected image"))
			}
			c.post(detectedEvent{ticket: ticket, res: res})
		}()
	}
}

// acquire opens the live session resources on their own goroutine so the
// loop keeps serving other events while a device is slow to open. The outcome comes back on c.acquired.
func (c *Controller) acquire(p *pending) {
	const op = "scan.live"
	c.setState(StateAcquiring)

	surface, ok := c.surfaces.ActiveSurface()
	if !ok {
		c.setState(StateIdle)
		c.finish(p, failure(scanerr.New(scanerr.CodeUnavailable, op, "no active surface to present the scanner")))
		return
	}
	if c.camera == nil {
		c.setState(StateIdle)
		c.finish(p, failure(scanerr.New(scanerr.CodeSetupFailed, op, "no camera configured")))
		return
	}

	c.acquiring = p.ticket
	go func() {
		ev := c.open(p, surface)
		select {
		case c.acquired <- ev:
		case <-c.stopped:
			if ev.session != nil {
				ev.session.release(p.logger)
			}
		}
	}()
}

// open acquires the session resources in order. Any failure unwinds what was
// acquired so far in reverse order. It runs off the loop and must only read
// immutable fields of p.
func (c *Controller) open(p *pending, surface Surface) acquiredEvent {
	const op = "scan.live"
	ticket := p.ticket
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{id: uuid.NewString(), ticket: ticket, cancel: cancel}
	fail := func(e *scanerr.Error) acquiredEvent {
		s.release(p.logger)
		return acquiredEvent{ticket: ticket, err: e}
	}

	dev, err := c.camera.SelectDevice(p.ctx)
	if err != nil {
		return fail(scanerr.Wrapf(scanerr.CodeSetupFailed, op, err, "no capture device available"))
	}
	in, err := c.camera.Open(p.ctx, dev)
	if err != nil {
		return fail(scanerr.Wrapf(scanerr.CodeSetupFailed, op, err, "failed to open capture device %s", dev.ID))
	}
	s.capture = in

	out, err := in.BindOutput(SymbologyQR, func(payload string) {
		c.post(hitEvent{ticket: ticket, payload: payload})
	})
	if err != nil {
		return fail(scanerr.Wrapf(scanerr.CodeSetupFailed, op, err, "failed to attach detection output"))
	}
	s.output = out

	preview, err := surface.AttachPreview(p.req.Viewport, in)
	if err != nil {
		return fail(scanerr.Wrapf(scanerr.CodeSetupFailed, op, err, "failed to attach preview"))
	}
	s.preview = preview

	overlay, err := surface.AttachOverlay(p.req.Viewport, func() {
		c.post(closeEvent{ticket: ticket})
	})
	if err != nil {
		return fail(scanerr.Wrapf(scanerr.CodeSetupFailed, op, err, "failed to attach overlay"))
	}
	s.overlay = overlay

	return acquiredEvent{ticket: ticket, session: s, ctx: sessCtx, device: dev.ID}
}

func (c *Controller) onAcquired(ev acquiredEvent) {
	if ev.ticket != c.acquiring {
		// the caller went away while the resources were being opened
		if ev.session != nil {
			c.logger.Debug("releasing abandoned session", "ticket", ev.ticket)
			ev.session.release(c.logger.With("session", ev.session.id))
		}
		return
	}
	c.acquiring = 0
	p := c.current(ev.ticket)
	if ev.err != nil {
		c.setState(StateIdle)
		if p != nil {
			c.finish(p, failure(ev.err))
		}
		return
	}

	s := ev.session
	s.active = true
	c.session = s
	c.setState(StateLive)
	c.logger.Info("live session attached", "session", s.id, "device", ev.device)

	in, ctx := s.capture, ev.ctx
	go func() {
		c.post(startedEvent{ticket: ev.ticket, err: in.Start(ctx)})
	}()
}

// live returns the live session if ticket still refers to it.
func (c *Controller) live(ticket uint64) *session {
	if c.state != StateLive || c.session == nil || !c.session.active {
		return nil
	}
	if ticket != 0 && c.session.ticket != ticket {
		return nil
	}
	return c.session
}

func (c *Controller) teardown() {
	if c.state == StateLive {
		c.setState(StateClosing)
	}
	if s := c.session; s != nil {
		s.release(c.logger.With("session", s.id))
		c.session = nil
	}
	c.setState(StateIdle)
}

func (c *Controller) onStarted(ev startedEvent) {
	s := c.live(ev.ticket)
	if s == nil {
		return
	}
	if ev.err == nil {
		c.logger.Debug("capture running", "session", s.id)
		return
	}
	c.teardown()
	if p := c.current(ev.ticket); p != nil {
		c.finish(p, failure(scanerr.Wrapf(scanerr.CodeSetupFailed, "scan.live", ev.err, "failed to start capture")))
	}
}

func (c *Controller) onHit(ev hitEvent) {
	s := c.live(ev.ticket)
	if s == nil {
		c.logger.Log(context.Background(), log.LevelTrace, "dropping late detection", "ticket", ev.ticket)
		return
	}
	s.active = false
	c.logger.Info("symbol detected", "session", s.id)
	c.feedback.Success()
	c.teardown()
	if p := c.current(ev.ticket); p != nil {
		c.finish(p, Payload(ev.payload))
	}
}

func (c *Controller) onClose(ev closeEvent) {
	s := c.live(ev.ticket)
	if s == nil {
		if ev.reply != nil {
			ev.reply <- false
		}
		return
	}
	ticket := s.ticket
	c.logger.Info("live session closed", "session", s.id)
	c.teardown()
	if p := c.current(ticket); p != nil {
		c.finish(p, Empty())
	}
	if ev.reply != nil {
		ev.reply <- true
	}
}

func (c *Controller) onAbandon(ev abandonEvent) {
	p := c.pending
	if p == nil || p.reply != ev.reply {
		return
	}
	p.logger.Info("caller went away", "error", ev.err)
	if c.session != nil && c.session.ticket == p.ticket {
		c.teardown()
	}
	if c.acquiring == p.ticket {
		c.acquiring = 0
		c.setState(StateIdle)
	}
	c.finish(p, Failed(p.req.Op.String(), scanerr.CodeUnavailable, ev.err))
}

func (c *Controller) generate(ctx context.Context, req Request) Result {
	const op = "generate"
	if c.generator == nil {
		return failure(scanerr.New(scanerr.CodeUnavailable, op, "no generator configured"))
	}
	img, err := c.generator.Generate(ctx, req.Text)
	if err != nil {
		return Failed(op, scanerr.CodeImage, err)
	}
	return Result{Kind: KindImage, Image: img}
}

func (c *Controller) scanBytes(ctx context.Context, req Request) Result {
	const op = "scan.bytes"
	if len(req.Bytes) == 0 {
		return failure(scanerr.New(scanerr.CodeInvalidArgument, op, "missing 'bytes'"))
	}
	return c.detectBytes(ctx, op, req.Bytes)
}

func (c *Controller) scanPath(ctx context.Context, req Request) Result {
	const op = "scan.path"
	if req.Path == "" {
		return failure(scanerr.New(scanerr.CodeInvalidArgument, op, "missing 'path'"))
	}
	img, _, err := c.decoder.LoadPath(req.Path)
	if err != nil {
		return Failed(op, scanerr.CodeInvalidImage, err)
	}
	return c.detectImage(ctx, op, img)
}

func (c *Controller) detectBytes(ctx context.Context, op string, data []byte) Result {
	img, _, err := c.decoder.DecodeBytes(data)
	if err != nil {
		return Failed(op, scanerr.CodeInvalidImage, err)
	}
	return c.detectImage(ctx, op, img)
}

func (c *Controller) detectImage(ctx context.Context, op string, img image.Image) Result {
	if c.detector == nil {
		return failure(scanerr.New(scanerr.CodeUnavailable, op, "no detector configured"))
	}
	payload, found, err := c.detector.Detect(ctx, img)
	if err != nil {
		return Failed(op, scanerr.CodeDetection, err)
	}
	if !found {
		return Empty()
	}
	return Payload(payload)
}
