// Package media models a shared screen as a live stream: a Source grants a
// Stream after a permission prompt, the stream carries video tracks, and a
// Player renders the current frame of a track the way a video element would.
package media

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
)

// SourceHint is a preference passed to the source picker.
type SourceHint string

const (
	HintNone           SourceHint = ""
	HintCurrentDisplay SourceHint = "current-display"
)

// Constraints are the options forwarded with a permission request.
type Constraints struct {
	FrameRate float64
	Hint      SourceHint
}

// Source grants live streams, typically after a native permission prompt.
type Source interface {
	Name() string
	Acquire(ctx context.Context, constraints Constraints) (*Stream, error)
}

// Settings describe the negotiated properties of a video track.
type Settings struct {
	Width     int
	Height    int
	FrameRate float64
	Surface   string
}

// VideoTrack is one live video feed inside a stream.
type VideoTrack interface {
	ID() string
	Label() string
	Settings() Settings
	// ReadFrame returns the next frame of the live feed.
	ReadFrame(ctx context.Context) (image.Image, error)
	// Stop releases the track locally. It does not close Ended.
	Stop()
	// Ended is closed when the source terminates the track, for example when
	// the user revokes sharing outside the application.
	Ended() <-chan struct{}
}

// FrameGrabber is implemented by tracks that can return a rendered bitmap
// directly, without going through a Player.
type FrameGrabber interface {
	GrabFrame(ctx context.Context) (image.Image, error)
}

// Stream is a granted set of tracks.
type Stream struct {
	id       string
	tracks   []VideoTrack
	stopOnce sync.Once
}

// NewStream wraps the supplied tracks in a stream with a fresh identifier.
func NewStream(tracks ...VideoTrack) *Stream {
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

// ID identifies the stream.
func (s *Stream) ID() string { return s.id }

// VideoTracks returns the stream's video tracks in grant order.
func (s *Stream) VideoTracks() []VideoTrack {
	return append([]VideoTrack(nil), s.tracks...)
}

// Stop stops every track. It is idempotent.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		for _, track := range s.tracks {
			track.Stop()
		}
	})
}

// Ended is closed when the first video track is ended by the source. A stream
// without tracks returns a nil channel, which never becomes ready.
func (s *Stream) Ended() <-chan struct{} {
	if len(s.tracks) == 0 {
		return nil
	}
	return s.tracks[0].Ended()
}

// trackState carries the bookkeeping shared by track implementations.
type trackState struct {
	id      string
	label   string
	mu      sync.Mutex
	stopped bool
	ended   chan struct{}
	endOnce sync.Once
}

func newTrackState(label string) *trackState {
	return &trackState{id: uuid.NewString(), label: label, ended: make(chan struct{})}
}

func (t *trackState) ID() string    { return t.id }
func (t *trackState) Label() string { return t.label }

func (t *trackState) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *trackState) isLive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	select {
	case <-t.ended:
		return false
	default:
		return true
	}
}

func (t *trackState) Ended() <-chan struct{} { return t.ended }

// end marks the track as terminated by the source.
func (t *trackState) end() {
	t.endOnce.Do(func() { close(t.ended) })
}
