package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/offlinefirst/framegrab/pkg/loop"
	"github.com/offlinefirst/framegrab/pkg/media"
	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) of(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) waitFor(t *testing.T, what string, cond func(*recorder) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(r) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (r *recorder) waitScreenshots(t *testing.T, n int) []Event {
	t.Helper()
	r.waitFor(t, "screenshots", func(r *recorder) bool { return len(r.of(EventScreenshot)) >= n })
	return r.of(EventScreenshot)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type harness struct {
	controller *Controller
	loop       *loop.Loop
	source     *media.SyntheticSource
	events     *recorder
}

func newHarness(t *testing.T, sourceOpts media.SyntheticOptions, mutate func(*Options)) harness {
	t.Helper()
	l := loop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)

	source := media.NewSyntheticSource(sourceOpts)
	rec := &recorder{}
	opts := Options{
		Loop:   l,
		Source: source,
		Capabilities: screenshots.Capabilities{
			PreferredStrategy:         screenshots.KindBitmap,
			SourcePreferenceSupported: true,
			Available:                 true,
		},
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		FrameRate:       50,
		TickInterval:    10 * time.Millisecond,
		ElapsedInterval: 20 * time.Millisecond,
		Listeners:       []Listener{rec.listen},
	}
	if mutate != nil {
		mutate(&opts)
	}
	controller, err := New(opts)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { _ = controller.Stop(context.Background()) })
	return harness{controller: controller, loop: l, source: source, events: rec}
}

func (h harness) start(t *testing.T) {
	t.Helper()
	if err := h.controller.RequestCapture(context.Background(), Request{}); err != nil {
		t.Fatalf("request capture: %v", err)
	}
}

func (h harness) state(t *testing.T) State {
	t.Helper()
	snap, err := h.controller.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap.State
}

func lastStatus(r *recorder) Status {
	statuses := r.of(EventStatus)
	if len(statuses) == 0 {
		return Status{}
	}
	return statuses[len(statuses)-1].Status
}

func errorStatuses(r *recorder) int {
	count := 0
	for _, ev := range r.of(EventStatus) {
		if ev.Status.Severity == SeverityError {
			count++
		}
	}
	return count
}

func TestImmediateCaptureLifecycle(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{Width: 32, Height: 24}, nil)
	h.start(t)

	snap, err := h.controller.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != StateReady || !snap.Buttons.Screenshot || !snap.Buttons.Stop || snap.Buttons.Start {
		t.Fatalf("unexpected ready snapshot %+v", snap)
	}

	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	shots := h.events.waitScreenshots(t, 1)
	shot := shots[0].Screenshot
	if shot.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", shot.Sequence)
	}
	if !strings.HasPrefix(shot.Filename, "screenshot-1-") || !strings.HasSuffix(shot.Filename, ".png") {
		t.Fatalf("unexpected filename %q", shot.Filename)
	}
	if shot.Image.Strategy != screenshots.KindBitmap || shot.Image.Width != 32 {
		t.Fatalf("unexpected image %+v", shot.Image)
	}
	h.events.waitFor(t, "captured status", func(r *recorder) bool {
		return lastStatus(r).Severity == SeverityReady && lastStatus(r).Message == msgCaptured
	})

	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if state := h.state(t); state != StateIdle {
		t.Fatalf("expected idle after stop, got %s", state)
	}
	if !h.source.LastTrack().Stopped() {
		t.Fatalf("expected track stopped")
	}

	timeline := h.controller.Timeline()
	var states []State
	for _, entry := range timeline {
		states = append(states, entry.State)
	}
	want := []State{StateIdle, StateRequesting, StateReady, StateStopped, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("unexpected timeline %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("unexpected timeline %v", states)
		}
	}
}

func TestDelayedCapture(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)

	if err := h.controller.CaptureNow(context.Background(), 60*time.Millisecond); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if state := h.state(t); state != StateDelaying {
		t.Fatalf("expected delaying, got %s", state)
	}
	if err := h.controller.CaptureNow(context.Background(), 0); !errors.Is(err, ErrDelayPending) {
		t.Fatalf("expected ErrDelayPending, got %v", err)
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if !snap.Buttons.CancelDelay || snap.Buttons.Screenshot {
		t.Fatalf("unexpected buttons while delaying %+v", snap.Buttons)
	}

	shots := h.events.waitScreenshots(t, 1)
	if len(shots) != 1 || shots[0].Screenshot.Sequence != 1 {
		t.Fatalf("expected exactly one screenshot, got %d", len(shots))
	}
	countdowns := h.events.of(EventCountdown)
	if len(countdowns) < 2 {
		t.Fatalf("expected countdown ticks, got %d", len(countdowns))
	}
	if countdowns[0].Remaining != 60*time.Millisecond {
		t.Fatalf("expected initial remaining 60ms, got %s", countdowns[0].Remaining)
	}
	h.events.waitFor(t, "ready state", func(*recorder) bool { return h.state(t) == StateReady })
}

func TestCancelDelayPreventsCapture(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)

	if err := h.controller.CaptureNow(context.Background(), 80*time.Millisecond); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if err := h.controller.CancelDelay(context.Background()); err != nil {
		t.Fatalf("cancel delay: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if shots := h.events.of(EventScreenshot); len(shots) != 0 {
		t.Fatalf("expected no screenshot after cancel, got %d", len(shots))
	}
	if state := h.state(t); state != StateReady {
		t.Fatalf("expected ready after cancel, got %s", state)
	}
	if err := h.controller.CancelDelay(context.Background()); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}

	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if shot := h.events.waitScreenshots(t, 1)[0].Screenshot; shot.Sequence != 1 {
		t.Fatalf("cancelled delay must not consume a sequence number, got %d", shot.Sequence)
	}
}

func TestStopDuringDelay(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)

	if err := h.controller.CaptureNow(context.Background(), 80*time.Millisecond); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if shots := h.events.of(EventScreenshot); len(shots) != 0 {
		t.Fatalf("expected no screenshot after stop, got %d", len(shots))
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateIdle || !snap.Buttons.Start || snap.Buttons.Stop {
		t.Fatalf("unexpected snapshot after stop %+v", snap)
	}
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("repeated stop: %v", err)
	}
}

func TestAcquireFailuresAreClassified(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		kind    media.FailureKind
		message string
	}{
		{"denied", media.ErrPermissionDenied, media.FailurePermissionDenied, "Permission denied"},
		{"no source", media.ErrNoSourceAvailable, media.FailureNoSourceAvailable, "No screen capture source"},
		{"unsupported", media.ErrUnsupported, media.FailureUnsupported, "not supported"},
		{"aborted", media.ErrAborted, media.FailureAborted, "aborted"},
		{"unknown", errors.New("compositor crashed"), media.FailureUnknown, "compositor crashed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, media.SyntheticOptions{Err: tc.err}, nil)
			err := h.controller.RequestCapture(context.Background(), Request{})
			var acquireErr *AcquireError
			if !errors.As(err, &acquireErr) {
				t.Fatalf("expected AcquireError, got %v", err)
			}
			if acquireErr.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, acquireErr.Kind)
			}
			if state := h.state(t); state != StateIdle {
				t.Fatalf("expected idle, got %s", state)
			}
			if errorStatuses(h.events) != 1 {
				t.Fatalf("expected one error status, got %d", errorStatuses(h.events))
			}
			if status := lastStatus(h.events); !strings.Contains(status.Message, tc.message) {
				t.Fatalf("unexpected status %q", status.Message)
			}
		})
	}
}

func TestRequestCanBeRetriedAfterDenial(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{Err: media.ErrPermissionDenied}, nil)
	if err := h.controller.RequestCapture(context.Background(), Request{}); err == nil {
		t.Fatalf("expected denial")
	}
	h.source.Update(func(o *media.SyntheticOptions) { o.Err = nil })
	h.start(t)
	if state := h.state(t); state != StateReady {
		t.Fatalf("expected ready, got %s", state)
	}
	if err := h.controller.RequestCapture(context.Background(), Request{}); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestStopDuringRequestAborts(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{PromptDelay: 300 * time.Millisecond}, nil)
	errs := make(chan error, 1)
	go func() { errs <- h.controller.RequestCapture(context.Background(), Request{}) }()

	h.events.waitFor(t, "requesting", func(*recorder) bool { return h.state(t) == StateRequesting })
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case err := <-errs:
		var acquireErr *AcquireError
		if !errors.As(err, &acquireErr) || acquireErr.Kind != media.FailureAborted {
			t.Fatalf("expected aborted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request did not return")
	}
	if h.source.Acquired() != 0 {
		t.Fatalf("aborted prompt must not grant a stream")
	}
	if state := h.state(t); state != StateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
}

func TestFallbackToCanvasWhenGrabUnsupported(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{NoGrabber: true, Width: 40, Height: 30}, nil)
	h.start(t)
	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	shot := h.events.waitScreenshots(t, 1)[0].Screenshot
	if shot.Image.Strategy != screenshots.KindCanvas || !strings.HasSuffix(shot.Filename, ".jpg") {
		t.Fatalf("expected canvas fallback, got %s %s", shot.Image.Strategy, shot.Filename)
	}
	if shot.Image.Width != 40 || shot.Image.Height != 30 {
		t.Fatalf("expected native size, got %dx%d", shot.Image.Width, shot.Image.Height)
	}
}

func TestCaptureFailureKeepsSessionReady(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{Width: -1, Height: -1}, nil)
	h.start(t)
	h.events.reset()

	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	h.events.waitFor(t, "capture failure", func(r *recorder) bool { return len(r.of(EventCaptureFailed)) > 0 })
	time.Sleep(20 * time.Millisecond)

	failures := h.events.of(EventCaptureFailed)
	if len(failures) != 1 || failures[0].Reason != screenshots.ReasonZeroDimensions {
		t.Fatalf("expected one zero-dimension failure, got %+v", failures)
	}
	if errorStatuses(h.events) != 1 {
		t.Fatalf("expected exactly one error status, got %d", errorStatuses(h.events))
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateReady || !snap.Buttons.Screenshot || snap.NextSequence != 1 {
		t.Fatalf("unexpected snapshot after failure %+v", snap)
	}
}

func TestSequenceIsMonotonicAcrossSessions(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{Width: 8, Height: 8}, nil)
	h.start(t)
	for i := 1; i <= 3; i++ {
		if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		h.events.waitScreenshots(t, i)
	}
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	h.start(t)
	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture: %v", err)
	}
	shots := h.events.waitScreenshots(t, 4)
	for i, ev := range shots {
		if ev.Screenshot.Sequence != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, ev.Screenshot.Sequence)
		}
	}
	if shots[3].Screenshot.SessionID == shots[0].Screenshot.SessionID {
		t.Fatalf("expected a new session id after restart")
	}
}

func TestElapsedStampTakenAtRequestTime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	h := newHarness(t, media.SyntheticOptions{}, func(o *Options) { o.Clock = clock.Now })
	h.start(t)

	clock.Advance(5 * time.Second)
	if err := h.controller.CaptureNow(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	clock.Advance(10 * time.Second)
	shot := h.events.waitScreenshots(t, 1)[0].Screenshot
	if shot.Elapsed != 5*time.Second {
		t.Fatalf("expected elapsed stamp 5s, got %s", shot.Elapsed)
	}
	if !shot.CapturedAt.Equal(clock.Now()) {
		t.Fatalf("expected capture time from clock, got %s", shot.CapturedAt)
	}
}

func TestSourceEndedTearsDownSession(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)
	h.source.LastTrack().End()

	h.events.waitFor(t, "idle after end", func(r *recorder) bool { return lastStatus(r).Message == msgEnded })
	if state := h.state(t); state != StateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
	if err := h.controller.CaptureNow(context.Background(), 0); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if lastStatus(h.events).Severity != SeverityError {
		t.Fatalf("expected an error status for an inactive capture")
	}
}

func TestSourceEndedDuringDelayCancelsCapture(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)

	if err := h.controller.CaptureNow(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if state := h.state(t); state != StateDelaying {
		t.Fatalf("expected delaying, got %s", state)
	}
	h.source.LastTrack().End()
	h.events.waitFor(t, "idle after end", func(r *recorder) bool { return lastStatus(r).Message == msgEnded })

	h.events.reset()
	time.Sleep(200 * time.Millisecond)
	for _, ev := range h.events.all() {
		if ev.Kind == EventScreenshot || ev.Kind == EventCountdown {
			t.Fatalf("unexpected %v event after the source ended", ev.Kind)
		}
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateIdle || !snap.Buttons.Start || snap.Buttons.CancelDelay {
		t.Fatalf("unexpected snapshot after end %+v", snap)
	}
	if snap.NextSequence != 1 {
		t.Fatalf("cancelled delay must not consume a sequence number")
	}
}

// stall keeps the loop busy for d so queued calls outlive short deadlines.
func (h harness) stall(d time.Duration) {
	h.loop.Post(func() { time.Sleep(d) })
}

func TestRequestWithExpiredContextStaysIdle(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.stall(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.controller.RequestCapture(ctx, Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateIdle || !snap.Buttons.Start || snap.Buttons.Stop {
		t.Fatalf("unexpected snapshot after expired request %+v", snap)
	}
	if h.source.Acquired() != 0 {
		t.Fatalf("expired request must not reach the source")
	}
	h.start(t)
	if state := h.state(t); state != StateReady {
		t.Fatalf("expected ready after retry, got %s", state)
	}
}

func TestRequestCancelledDuringPromptReturnsToIdle(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{PromptDelay: 300 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := h.controller.RequestCapture(ctx, Request{})
	var acquireErr *AcquireError
	if !errors.As(err, &acquireErr) || acquireErr.Kind != media.FailureAborted {
		t.Fatalf("expected aborted, got %v", err)
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateIdle || !snap.Buttons.Start {
		t.Fatalf("unexpected snapshot after cancelled prompt %+v", snap)
	}
}

func TestCaptureWithExpiredContextIsNotTaken(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)
	h.stall(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.controller.CaptureNow(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if shots := h.events.of(EventScreenshot); len(shots) != 0 {
		t.Fatalf("expired capture must not produce a screenshot, got %d", len(shots))
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.State != StateReady || !snap.Buttons.Screenshot || snap.InFlight {
		t.Fatalf("unexpected snapshot after expired capture %+v", snap)
	}
}

type blockingStrategy struct {
	release chan struct{}
}

func (b blockingStrategy) Kind() screenshots.Kind { return screenshots.KindBitmap }

func (b blockingStrategy) Capture(ctx context.Context, target screenshots.Target) (screenshots.Image, error) {
	<-b.release
	return screenshots.Image{Data: []byte{1}, Ext: "png", Width: 1, Height: 1, Strategy: screenshots.KindBitmap}, nil
}

func TestLateCaptureResultIsDiscarded(t *testing.T) {
	strategy := blockingStrategy{release: make(chan struct{})}
	h := newHarness(t, media.SyntheticOptions{}, func(o *Options) { o.Strategy = strategy })
	h.start(t)

	if err := h.controller.CaptureNow(context.Background(), 0); err != nil {
		t.Fatalf("capture now: %v", err)
	}
	if err := h.controller.CaptureNow(context.Background(), 0); !errors.Is(err, ErrCaptureInFlight) {
		t.Fatalf("expected ErrCaptureInFlight, got %v", err)
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.Buttons.Screenshot || !snap.InFlight {
		t.Fatalf("screenshot trigger must be disabled while in flight")
	}
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(strategy.release)
	time.Sleep(50 * time.Millisecond)
	if shots := h.events.of(EventScreenshot); len(shots) != 0 {
		t.Fatalf("late result must be dropped, got %d screenshots", len(shots))
	}
	snap, _ = h.controller.Snapshot(context.Background())
	if snap.NextSequence != 1 {
		t.Fatalf("dropped result must not consume a sequence number")
	}
}

type unavailableSource struct {
	*media.SyntheticSource
}

func (unavailableSource) Probe() error { return media.ErrUnsupported }

func TestUnavailableSourceDisablesStart(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, func(o *Options) {
		o.Source = unavailableSource{media.NewSyntheticSource(media.SyntheticOptions{})}
	})
	if !errors.Is(h.controller.Unavailable(), media.ErrUnsupported) {
		t.Fatalf("expected unavailable error")
	}
	snap, _ := h.controller.Snapshot(context.Background())
	if snap.Buttons.Start || snap.Status.Severity != SeverityError {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	err := h.controller.RequestCapture(context.Background(), Request{})
	var acquireErr *AcquireError
	if !errors.As(err, &acquireErr) || acquireErr.Kind != media.FailureUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestSubscribeReplaysCurrentState(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)
	late := &recorder{}
	if err := h.controller.Subscribe(context.Background(), late.listen); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	events := late.all()
	if len(events) != 3 {
		t.Fatalf("expected three replayed events, got %d", len(events))
	}
	if events[0].State != StateReady || !events[1].Buttons.Screenshot || events[2].Status.Message != msgReady {
		t.Fatalf("unexpected replay %+v", events)
	}
}

func TestElapsedUpdatesWhileActive(t *testing.T) {
	h := newHarness(t, media.SyntheticOptions{}, nil)
	h.start(t)
	h.events.waitFor(t, "elapsed ticks", func(r *recorder) bool { return len(r.of(EventElapsed)) >= 2 })
	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	count := len(h.events.of(EventElapsed))
	time.Sleep(60 * time.Millisecond)
	if after := len(h.events.of(EventElapsed)); after != count {
		t.Fatalf("elapsed updates continued after stop: %d -> %d", count, after)
	}
}

func TestButtonsFor(t *testing.T) {
	cases := []struct {
		state    State
		inFlight bool
		want     Buttons
	}{
		{StateIdle, false, Buttons{Start: true}},
		{StateRequesting, false, Buttons{}},
		{StateReady, false, Buttons{Screenshot: true, Stop: true}},
		{StateReady, true, Buttons{Stop: true}},
		{StateDelaying, false, Buttons{Stop: true, CancelDelay: true}},
	}
	for _, tc := range cases {
		if got := buttonsFor(tc.state, tc.inFlight, true); got != tc.want {
			t.Fatalf("%s inFlight=%v: expected %+v, got %+v", tc.state, tc.inFlight, tc.want, got)
		}
	}
	if buttonsFor(StateIdle, false, false).Start {
		t.Fatalf("start must be disabled when the source is unavailable")
	}
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	if got := Filename(3, at, "png"); got != "screenshot-3-3-5-2024- 2-07-09 PM.png" {
		t.Fatalf("unexpected filename %q", got)
	}
	if got := Filename(1, at, ".jpg"); !strings.HasSuffix(got, ".jpg") || strings.Contains(got, "..") {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestDelayFromSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    time.Duration
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"fractional", 1.5, 1500 * time.Millisecond, false},
		{"negative", -0.5, 0, true},
		{"not a number", math.NaN(), 0, true},
		{"infinite", math.Inf(1), 0, true},
		{"overflows duration", 1e300, 0, true},
		{"at the int64 limit", float64(math.MaxInt64) / 1e9, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DelayFromSeconds(tt.seconds)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDelay) {
					t.Fatalf("expected ErrInvalidDelay, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}
