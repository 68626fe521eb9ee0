package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// SyntheticOptions shape the streams produced by a SyntheticSource.
type SyntheticOptions struct {
	Width  int
	Height int
	// PromptDelay simulates the time a user spends in the permission prompt.
	PromptDelay time.Duration
	// Err, when set, is returned from Acquire after the prompt.
	Err error
	// NoGrabber produces tracks that do not implement FrameGrabber.
	NoGrabber bool
	// GrabErr is returned by GrabFrame when set.
	GrabErr error
	// Blank renders all-black frames.
	Blank bool
}

// SyntheticSource produces generated gradient frames. It stands in for a real
// display where none is available and drives the controller in tests.
type SyntheticSource struct {
	mu       sync.Mutex
	opts     SyntheticOptions
	acquired int
	last     *SyntheticTrack
}

// NewSyntheticSource constructs a source with the supplied options. Width and
// Height default to 640x400 when both are zero; a negative dimension produces
// zero-sized frames.
func NewSyntheticSource(opts SyntheticOptions) *SyntheticSource {
	if opts.Width == 0 && opts.Height == 0 {
		opts.Width, opts.Height = 640, 400
	}
	if opts.Width < 0 {
		opts.Width = 0
	}
	if opts.Height < 0 {
		opts.Height = 0
	}
	return &SyntheticSource{opts: opts}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

// Acquire simulates the permission prompt and grants a single-track stream.
func (s *SyntheticSource) Acquire(ctx context.Context, constraints Constraints) (*Stream, error) {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	if opts.PromptDelay > 0 {
		timer := time.NewTimer(opts.PromptDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("synthetic prompt: %w", ErrAborted)
		case <-timer.C:
		}
	} else if ctx.Err() != nil {
		return nil, fmt.Errorf("synthetic prompt: %w", ErrAborted)
	}
	if opts.Err != nil {
		return nil, opts.Err
	}

	track := &SyntheticTrack{
		trackState: newTrackState("synthetic display"),
		settings: Settings{
			Width:     opts.Width,
			Height:    opts.Height,
			FrameRate: constraints.FrameRate,
			Surface:   "monitor",
		},
		blank:   opts.Blank,
		grabErr: opts.GrabErr,
	}
	s.mu.Lock()
	s.acquired++
	s.last = track
	s.mu.Unlock()

	if opts.NoGrabber {
		return NewStream(plainTrack{track}), nil
	}
	return NewStream(track), nil
}

// Update replaces the options used by subsequent acquisitions.
func (s *SyntheticSource) Update(fn func(*SyntheticOptions)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

// Acquired counts granted streams.
func (s *SyntheticSource) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// LastTrack returns the most recently granted track.
func (s *SyntheticSource) LastTrack() *SyntheticTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SyntheticTrack generates frames on demand.
type SyntheticTrack struct {
	*trackState
	settings Settings
	blank    bool
	grabErr  error

	frameMu sync.Mutex
	counter int
}

func (t *SyntheticTrack) Settings() Settings { return t.settings }

// ReadFrame renders the next gradient frame.
func (t *SyntheticTrack) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.isLive() {
		return nil, fmt.Errorf("read synthetic frame: track %s is not live", t.id)
	}
	return t.render(), nil
}

// GrabFrame returns a frame directly from the track.
func (t *SyntheticTrack) GrabFrame(ctx context.Context) (image.Image, error) {
	if t.grabErr != nil {
		return nil, t.grabErr
	}
	return t.ReadFrame(ctx)
}

// End terminates the track from the source side, as when the user stops
// sharing from the platform's own controls.
func (t *SyntheticTrack) End() { t.end() }

// Stopped reports whether the consumer stopped the track.
func (t *SyntheticTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *SyntheticTrack) render() image.Image {
	t.frameMu.Lock()
	t.counter++
	hue := uint8(40 + (t.counter*37)%200)
	t.frameMu.Unlock()

	width, height := t.settings.Width, t.settings.Height
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if t.blank {
		return img
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: hue, G: uint8(x % 255), B: uint8(y % 255), A: 255})
		}
	}
	return img
}

// plainTrack hides GrabFrame so the track cannot be grabbed directly.
type plainTrack struct {
	inner *SyntheticTrack
}

func (p plainTrack) ID() string         { return p.inner.ID() }
func (p plainTrack) Label() string      { return p.inner.Label() }
func (p plainTrack) Settings() Settings { return p.inner.Settings() }
func (p plainTrack) ReadFrame(ctx context.Context) (image.Image, error) {
	return p.inner.ReadFrame(ctx)
}
func (p plainTrack) Stop()                  { p.inner.Stop() }
func (p plainTrack) Ended() <-chan struct{} { return p.inner.Ended() }
