// Package capture implements the capture session controller: the state
// machine that acquires a live stream, schedules immediate or delayed
// stills, runs the frame acquisition pipeline and tears the session down.
//
// Every piece of controller state lives on a single event loop. Public
// methods hop onto the loop and may be called from any goroutine except a
// Listener callback.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/framegrab/pkg/countdown"
	"github.com/offlinefirst/framegrab/pkg/elapsed"
	"github.com/offlinefirst/framegrab/pkg/logging"
	"github.com/offlinefirst/framegrab/pkg/loop"
	"github.com/offlinefirst/framegrab/pkg/media"
	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

const (
	// DefaultFrameRate is the frame rate hint passed to the source.
	DefaultFrameRate = 1.0
	// DefaultMetadataTimeout bounds the wait for the first rendered frame.
	DefaultMetadataTimeout = 10 * time.Second
)

// Options configure a Controller.
type Options struct {
	// Loop must be running for the controller's lifetime.
	Loop         *loop.Loop
	Source       media.Source
	Capabilities screenshots.Capabilities
	// Strategy overrides the pipeline chosen from Capabilities.
	Strategy             screenshots.Strategy
	Logger               *slog.Logger
	Clock                func() time.Time
	FrameRate            float64
	PreferCurrentDisplay bool
	TickInterval         time.Duration
	ElapsedInterval      time.Duration
	MetadataTimeout      time.Duration
	Listeners            []Listener
}

// Request carries per-request source options. Zero values fall back to the
// controller's configuration.
type Request struct {
	FrameRate  float64
	SourceHint media.SourceHint
}

// prober is implemented by sources that can report unavailability up front.
type prober interface {
	Probe() error
}

type session struct {
	id        string
	stream    *media.Stream
	player    *media.Player
	startedAt time.Time
	pending   *countdown.Countdown
	quit      chan struct{}
}

// Controller owns at most one capture session at a time.
type Controller struct {
	loop            *loop.Loop
	source          media.Source
	caps            screenshots.Capabilities
	strategy        screenshots.Strategy
	logger          *slog.Logger
	clock           func() time.Time
	frameRate       float64
	preferCurrent   bool
	tick            time.Duration
	metadataTimeout time.Duration
	unavailable     error

	// Loop-owned.
	listeners     []Listener
	state         State
	status        Status
	session       *session
	generation    uint64
	requestCancel context.CancelFunc
	inFlight      bool
	captureCancel context.CancelFunc
	sequence      int
	elapsed       *elapsed.Timer

	timelineMu sync.Mutex
	timeline   []TimelineEntry
}

// New constructs an idle controller. Sources implementing Probe are checked
// immediately; a failing probe leaves the start trigger disabled.
func New(opts Options) (*Controller, error) {
	if opts.Loop == nil {
		return nil, errors.New("controller requires an event loop")
	}
	if opts.Source == nil {
		return nil, errors.New("controller requires a media source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.Component(logger, "capture")
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = screenshots.ForCapabilities(opts.Capabilities, logger)
	}
	frameRate := opts.FrameRate
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	metadataTimeout := opts.MetadataTimeout
	if metadataTimeout <= 0 {
		metadataTimeout = DefaultMetadataTimeout
	}

	c := &Controller{
		loop:            opts.Loop,
		source:          opts.Source,
		caps:            opts.Capabilities,
		strategy:        strategy,
		logger:          logger,
		clock:           clock,
		frameRate:       frameRate,
		preferCurrent:   opts.PreferCurrentDisplay,
		tick:            opts.TickInterval,
		metadataTimeout: metadataTimeout,
		listeners:       append([]Listener(nil), opts.Listeners...),
		state:           StateIdle,
		status:          Status{Message: "Start screen capture to begin.", Severity: SeverityInfo},
	}
	if p, ok := opts.Source.(prober); ok {
		if err := p.Probe(); err != nil {
			c.unavailable = err
			c.status = Status{Message: unavailableMessage(err), Severity: SeverityError}
			logger.Warn("screen capture source unavailable", "source", opts.Source.Name(), logging.KeyError, err)
		}
	}
	c.elapsed = elapsed.New(opts.Loop, elapsed.Options{
		Clock:    clock,
		Interval: opts.ElapsedInterval,
		OnUpdate: func(d time.Duration) {
			c.emit(Event{Kind: EventElapsed, Elapsed: d})
		},
	})
	c.record(StateIdle, "initialised")
	return c, nil
}

// Unavailable returns the pre-flight failure, if any.
func (c *Controller) Unavailable() error { return c.unavailable }

// Capabilities returns the detected platform capabilities.
func (c *Controller) Capabilities() screenshots.Capabilities { return c.caps }

// Subscribe registers l and replays the current state, buttons and status to it.
func (c *Controller) Subscribe(ctx context.Context, l Listener) error {
	if l == nil {
		return errors.New("listener must not be nil")
	}
	return c.call(ctx, func() {
		c.listeners = append(c.listeners, l)
		at := c.clock()
		l(Event{Kind: EventState, At: at, State: c.state})
		l(Event{Kind: EventButtons, At: at, Buttons: c.buttons()})
		l(Event{Kind: EventStatus, At: at, Status: c.status})
	})
}

// RequestCapture asks the source for a stream and blocks until the session
// is Ready or the request has failed. Failures are *AcquireError values.
func (c *Controller) RequestCapture(ctx context.Context, req Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		gen         uint64
		reqCtx      context.Context
		constraints media.Constraints
		rejected    error
	)
	err := c.call(ctx, func() {
		if c.unavailable != nil {
			c.setStatus(Status{Message: unavailableMessage(c.unavailable), Severity: SeverityError})
			rejected = newAcquireError(c.unavailable)
			return
		}
		if c.state != StateIdle {
			rejected = ErrAlreadyActive
			return
		}
		c.generation++
		gen = c.generation
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithCancel(ctx)
		c.requestCancel = cancel
		constraints = c.constraints(req)
		c.transition(StateRequesting, "permission requested")
		c.setStatus(Status{Message: msgRequesting, Severity: SeverityInfo})
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}

	stream, player, acquireErr := c.acquire(reqCtx, constraints)

	var result error
	if err := c.loop.Call(context.Background(), func() {
		result = c.finishRequest(gen, stream, player, acquireErr)
	}); err != nil {
		release(stream, player)
		return err
	}
	return result
}

// call runs fn on the loop unless ctx is done by the time the loop reaches
// it. It waits for the loop either way, so a nil error means fn ran and a
// context error means it did not.
func (c *Controller) call(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var skipped error
	if err := c.loop.Call(context.Background(), func() {
		if skipped = ctx.Err(); skipped != nil {
			return
		}
		fn()
	}); err != nil {
		return err
	}
	return skipped
}

func (c *Controller) constraints(req Request) media.Constraints {
	constraints := media.Constraints{FrameRate: req.FrameRate, Hint: req.SourceHint}
	if constraints.FrameRate <= 0 {
		constraints.FrameRate = c.frameRate
	}
	if constraints.Hint == media.HintNone && c.preferCurrent {
		constraints.Hint = media.HintCurrentDisplay
	}
	if !c.caps.SourcePreferenceSupported {
		constraints.Hint = media.HintNone
	}
	return constraints
}

// acquire runs off the loop: the permission prompt and the metadata wait.
func (c *Controller) acquire(ctx context.Context, constraints media.Constraints) (*media.Stream, *media.Player, error) {
	stream, err := c.source.Acquire(ctx, constraints)
	if err != nil {
		return nil, nil, err
	}
	if stream == nil {
		return nil, nil, media.ErrNoSourceAvailable
	}
	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		stream.Stop()
		return nil, nil, fmt.Errorf("granted stream has no video track: %w", media.ErrNoSourceAvailable)
	}
	player := media.NewPlayer()
	if err := player.Attach(tracks[0], constraints.FrameRate); err != nil {
		stream.Stop()
		return nil, nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()
	if err := player.WaitMetadata(waitCtx); err != nil {
		release(stream, player)
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("stream rendered no frames within %s", c.metadataTimeout)
		}
		return nil, nil, err
	}
	return stream, player, nil
}

func (c *Controller) finishRequest(gen uint64, stream *media.Stream, player *media.Player, err error) error {
	if gen != c.generation || c.state != StateRequesting {
		release(stream, player)
		return &AcquireError{Kind: media.FailureAborted, Err: media.ErrAborted}
	}
	if c.requestCancel != nil {
		c.requestCancel()
		c.requestCancel = nil
	}
	if err != nil {
		acquireErr := newAcquireError(err)
		c.logger.Warn("stream acquisition failed", "kind", acquireErr.Kind, logging.KeyError, err)
		c.transition(StateIdle, string(acquireErr.Kind))
		c.setStatus(Status{Message: acquireMessage(acquireErr.Kind, err), Severity: SeverityError})
		return acquireErr
	}

	s := &session{
		id:        uuid.NewString(),
		stream:    stream,
		player:    player,
		startedAt: c.clock(),
		quit:      make(chan struct{}),
	}
	c.session = s
	go c.watchEnded(s)
	c.elapsed.Start()
	c.logger.Info("screen capture started",
		logging.KeySession, s.id,
		"source", c.source.Name(),
		"track", stream.VideoTracks()[0].Label(),
		logging.KeyStrategy, c.strategy.Kind(),
	)
	c.transition(StateReady, "stream granted")
	c.setStatus(Status{Message: msgReady, Severity: SeverityReady})
	return nil
}

func (c *Controller) watchEnded(s *session) {
	select {
	case <-s.stream.Ended():
		c.loop.Post(func() {
			if c.session != s {
				return
			}
			c.logger.Info("stream ended by source", logging.KeySession, s.id)
			c.teardown("source ended")
			c.setStatus(Status{Message: msgEnded, Severity: SeverityInfo})
		})
	case <-s.quit:
	}
}

// CaptureNow captures a still immediately, or after delay when delay is
// positive. It returns once the request is accepted; the result arrives as
// an EventScreenshot or EventCaptureFailed.
func (c *Controller) CaptureNow(ctx context.Context, delay time.Duration) error {
	var result error
	if err := c.call(ctx, func() {
		result = c.captureNow(delay)
	}); err != nil {
		return err
	}
	return result
}

func (c *Controller) captureNow(delay time.Duration) error {
	switch c.state {
	case StateReady:
	case StateDelaying:
		return ErrDelayPending
	default:
		c.setStatus(Status{Message: "Screen capture is not active!", Severity: SeverityError})
		return ErrNotActive
	}
	if c.inFlight {
		return ErrCaptureInFlight
	}
	s := c.session
	stamp := c.elapsed.Snapshot()
	if delay <= 0 {
		c.inFlight = true
		c.emitButtons()
		c.startPipeline(s, stamp)
		return nil
	}

	pending, err := countdown.Start(c.loop, countdown.Options{
		Total: delay,
		Tick:  c.tick,
		OnTick: func(remaining time.Duration) {
			c.emit(Event{Kind: EventCountdown, Remaining: remaining})
		},
		OnFire: func() {
			c.fireDelayed(s, stamp)
		},
	})
	if err != nil {
		return err
	}
	s.pending = pending
	c.transition(StateDelaying, "delay "+delay.String())
	c.setStatus(Status{Message: delayMessage(delay.Seconds()), Severity: SeverityInfo})
	c.emit(Event{Kind: EventCountdown, Remaining: delay})
	return nil
}

func (c *Controller) fireDelayed(s *session, stamp time.Duration) {
	if c.session != s || c.state != StateDelaying {
		return
	}
	s.pending = nil
	c.inFlight = true
	c.transition(StateReady, "delay elapsed")
	c.startPipeline(s, stamp)
}

func (c *Controller) startPipeline(s *session, stamp time.Duration) {
	c.setStatus(Status{Message: msgCapturing, Severity: SeverityInfo})
	ctx, cancel := context.WithCancel(context.Background())
	c.captureCancel = cancel
	strategy := c.strategy
	target := screenshots.Target{Stream: s.stream, Player: s.player}
	go func() {
		img, err := strategy.Capture(ctx, target)
		at := c.clock()
		c.loop.Post(func() {
			c.finishCapture(s, stamp, at, img, err)
		})
	}()
}

func (c *Controller) finishCapture(s *session, stamp time.Duration, at time.Time, img screenshots.Image, err error) {
	if c.session != s || !c.inFlight {
		c.logger.Debug("discarding capture result from a closed session")
		return
	}
	c.inFlight = false
	if c.captureCancel != nil {
		c.captureCancel()
		c.captureCancel = nil
	}
	if err != nil {
		reason := screenshots.Reason(err)
		c.logger.Warn("screenshot capture failed", logging.KeySession, s.id, "reason", reason, logging.KeyError, err)
		c.emit(Event{Kind: EventCaptureFailed, Reason: reason, Err: err})
		c.emitButtons()
		c.setStatus(Status{Message: captureFailedMessage(err), Severity: SeverityError})
		return
	}

	c.sequence++
	shot := &Screenshot{
		Sequence:   c.sequence,
		Filename:   Filename(c.sequence, at, img.Ext),
		CapturedAt: at,
		Elapsed:    stamp,
		SessionID:  s.id,
		Image:      img,
	}
	c.logger.Info("screenshot captured",
		logging.KeySequence, shot.Sequence,
		logging.KeyStrategy, img.Strategy,
		"width", img.Width,
		"height", img.Height,
		"bytes", len(img.Data),
	)
	c.emit(Event{Kind: EventScreenshot, Screenshot: shot, Elapsed: stamp})
	c.emitButtons()
	if img.Blank {
		c.setStatus(Status{Message: msgBlank, Severity: SeverityError})
		return
	}
	c.setStatus(Status{Message: msgCaptured, Severity: SeverityReady})
}

// CancelDelay abandons a pending delayed capture. It is a no-op otherwise.
func (c *Controller) CancelDelay(ctx context.Context) error {
	return c.call(ctx, func() {
		if c.state != StateDelaying || c.session == nil || c.session.pending == nil {
			return
		}
		c.session.pending.Cancel()
		c.session.pending = nil
		c.transition(StateReady, "delay cancelled")
		c.setStatus(Status{Message: msgDelayCancelled, Severity: SeverityInfo})
	})
}

// Stop ends the session from any state. It is idempotent.
func (c *Controller) Stop(ctx context.Context) error {
	return c.call(ctx, func() {
		switch c.state {
		case StateRequesting:
			if c.requestCancel != nil {
				c.requestCancel()
				c.requestCancel = nil
			}
			c.generation++
			c.transition(StateIdle, "request cancelled")
			c.setStatus(Status{Message: msgRequestStopped, Severity: SeverityInfo})
		case StateReady, StateDelaying:
			c.teardown("stopped by user")
			c.setStatus(Status{Message: msgStopped, Severity: SeverityInfo})
		}
	})
}

func (c *Controller) teardown(reason string) {
	s := c.session
	if s == nil {
		return
	}
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	if c.captureCancel != nil {
		c.captureCancel()
		c.captureCancel = nil
	}
	c.inFlight = false
	close(s.quit)
	release(s.stream, s.player)
	c.session = nil
	c.elapsed.Stop()
	c.logger.Info("screen capture stopped", logging.KeySession, s.id, "reason", reason, "duration", c.clock().Sub(s.startedAt))
	c.transition(StateStopped, reason)
	c.transition(StateIdle, reason)
}

// Snapshot reports the controller's current view.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.loop.Call(ctx, func() {
		snap = Snapshot{
			State:        c.state,
			Buttons:      c.buttons(),
			Status:       c.status,
			Strategy:     string(c.strategy.Kind()),
			Elapsed:      c.elapsed.Elapsed(),
			NextSequence: c.sequence + 1,
			InFlight:     c.inFlight,
		}
		if c.session != nil {
			snap.SessionID = c.session.id
			if c.session.pending != nil {
				snap.Remaining = c.session.pending.Remaining()
			}
		}
	})
	return snap, err
}

// Timeline returns recorded state transitions. Safe from any goroutine.
func (c *Controller) Timeline() []TimelineEntry {
	c.timelineMu.Lock()
	defer c.timelineMu.Unlock()
	return append([]TimelineEntry(nil), c.timeline...)
}

func (c *Controller) transition(state State, reason string) {
	c.state = state
	c.record(state, reason)
	c.logger.Debug("state transition", "state", state, "reason", reason)
	c.emit(Event{Kind: EventState, State: state})
	c.emitButtons()
}

func (c *Controller) record(state State, reason string) {
	c.timelineMu.Lock()
	c.timeline = append(c.timeline, TimelineEntry{State: state, Reason: reason, Timestamp: c.clock().UTC()})
	c.timelineMu.Unlock()
}

func (c *Controller) buttons() Buttons {
	return buttonsFor(c.state, c.inFlight, c.unavailable == nil)
}

func (c *Controller) emitButtons() {
	c.emit(Event{Kind: EventButtons, Buttons: c.buttons()})
}

func (c *Controller) setStatus(status Status) {
	c.status = status
	c.emit(Event{Kind: EventStatus, Status: status})
}

func (c *Controller) emit(ev Event) {
	if len(c.listeners) == 0 {
		return
	}
	ev.At = c.clock()
	for _, listener := range c.listeners {
		listener(ev)
	}
}

func release(stream *media.Stream, player *media.Player) {
	if player != nil {
		player.Detach()
	}
	if stream != nil {
		stream.Stop()
	}
}
