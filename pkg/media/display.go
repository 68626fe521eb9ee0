package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/offlinefirst/framegrab/pkg/permissions"
)

// Display describes one active monitor offered to the picker.
type Display struct {
	Index  int
	Bounds image.Rectangle
}

// PickFunc chooses a display, standing in for the platform's share picker.
// Returning ErrAborted models the user dismissing the prompt.
type PickFunc func(ctx context.Context, displays []Display, hint SourceHint) (int, error)

// DisplayOptions configure a DisplaySource.
type DisplayOptions struct {
	// DisplayIndex is used when no picker is configured.
	DisplayIndex int
	Lookup       permissions.LookupEnvFunc
	Pick         PickFunc
	// WatchInterval controls how often a granted display is checked for
	// disconnection. Zero selects two seconds.
	WatchInterval time.Duration
}

// DisplaySource shares a physical display through kbinani/screenshot.
type DisplaySource struct {
	opts DisplayOptions
}

// NewDisplaySource constructs a display source.
func NewDisplaySource(opts DisplayOptions) *DisplaySource {
	if opts.Lookup == nil {
		opts.Lookup = permissions.DefaultLookupEnv
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 2 * time.Second
	}
	return &DisplaySource{opts: opts}
}

func (d *DisplaySource) Name() string { return "display" }

// Probe reports whether the source can be used at all.
func (d *DisplaySource) Probe() error {
	probe := permissions.ProbeScreenRecording(d.opts.Lookup)
	switch probe.Status {
	case permissions.StatusDenied:
		return newSourceError(ErrPermissionDenied, joinMessage(probe.Message, probe.Guidance))
	case permissions.StatusUnavailable:
		return newSourceError(ErrUnsupported, joinMessage(probe.Message, probe.Guidance))
	}
	if screenshot.NumActiveDisplays() == 0 {
		return ErrNoSourceAvailable
	}
	return nil
}

// Acquire resolves the picker and grants a stream for the chosen display.
func (d *DisplaySource) Acquire(ctx context.Context, constraints Constraints) (*Stream, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("acquire display: %w", ErrAborted)
	}
	if err := d.Probe(); err != nil {
		return nil, err
	}

	displays := ListDisplays()
	index := d.opts.DisplayIndex
	if constraints.Hint == HintCurrentDisplay {
		index = 0
	}
	if d.opts.Pick != nil {
		picked, err := d.opts.Pick(ctx, displays, constraints.Hint)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("display picker: %w", ErrAborted)
			}
			return nil, fmt.Errorf("display picker: %w", err)
		}
		index = picked
	}
	if index < 0 || index >= len(displays) {
		return nil, newSourceError(ErrNoSourceAvailable, fmt.Sprintf("display %d not found (%d active)", index, len(displays)))
	}
	bounds := displays[index].Bounds
	if ctx.Err() != nil {
		return nil, fmt.Errorf("acquire display: %w", ErrAborted)
	}

	track := &displayTrack{
		trackState: newTrackState(fmt.Sprintf("display %d", index)),
		index:      index,
		bounds:     bounds,
		frameRate:  constraints.FrameRate,
	}
	go track.watch(d.opts.WatchInterval)
	return NewStream(track), nil
}

type displayTrack struct {
	*trackState
	index     int
	bounds    image.Rectangle
	frameRate float64
}

func (t *displayTrack) Settings() Settings {
	return Settings{
		Width:     t.bounds.Dx(),
		Height:    t.bounds.Dy(),
		FrameRate: t.frameRate,
		Surface:   "monitor",
	}
}

func (t *displayTrack) ReadFrame(ctx context.Context) (image.Image, error) {
	return t.GrabFrame(ctx)
}

// GrabFrame captures the display's current contents.
func (t *displayTrack) GrabFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.isLive() {
		return nil, fmt.Errorf("capture display %d: track is not live", t.index)
	}
	img, err := screenshot.CaptureRect(t.bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", t.index, err)
	}
	return img, nil
}

// ListDisplays enumerates the active displays in index order.
func ListDisplays() []Display {
	count := screenshot.NumActiveDisplays()
	displays := make([]Display, 0, count)
	for i := 0; i < count; i++ {
		displays = append(displays, Display{Index: i, Bounds: screenshot.GetDisplayBounds(i)})
	}
	return displays
}

// watch ends the track when its display disappears.
func (t *displayTrack) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !t.isLive() {
			return
		}
		if screenshot.NumActiveDisplays() <= t.index || screenshot.GetDisplayBounds(t.index) != t.bounds {
			t.end()
			return
		}
	}
}

func joinMessage(message, guidance string) string {
	if guidance == "" {
		return message
	}
	return message + ": " + guidance
}
