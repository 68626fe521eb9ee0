package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

// ErrAlreadyAttached is returned when a player is attached twice.
var ErrAlreadyAttached = errors.New("player already attached to a track")

// Player renders a live track into a current frame, in the role of a video
// element with the stream as its source. One Player serves one session.
type Player struct {
	mu       sync.Mutex
	frame    image.Image
	width    int
	height   int
	loaded   bool
	frames   uint64
	attached bool
	metadata chan struct{}
	rendered chan struct{}
	detached chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// NewPlayer constructs an unattached player.
func NewPlayer() *Player {
	return &Player{
		metadata: make(chan struct{}),
		rendered: make(chan struct{}),
		detached: make(chan struct{}),
	}
}

// Attach starts rendering track at roughly frameRate frames per second.
func (p *Player) Attach(track VideoTrack, frameRate float64) error {
	if track == nil {
		return fmt.Errorf("attach player: %w", ErrNoSourceAvailable)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return ErrAlreadyAttached
	}
	select {
	case <-p.detached:
		return fmt.Errorf("attach player: %w", ErrAborted)
	default:
	}
	interval := time.Second
	if frameRate > 0 {
		interval = time.Duration(float64(time.Second) / frameRate)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.attached = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, track, interval, p.done)
	return nil
}

func (p *Player) run(ctx context.Context, track VideoTrack, interval time.Duration, done chan struct{}) {
	defer close(done)
	for {
		frame, err := track.ReadFrame(ctx)
		if err == nil && frame != nil {
			p.present(frame)
		} else if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-track.Ended():
			return
		case <-time.After(interval):
		}
	}
}

func (p *Player) present(frame image.Image) {
	bounds := frame.Bounds()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = frame
	p.width = bounds.Dx()
	p.height = bounds.Dy()
	p.frames++
	if !p.loaded {
		p.loaded = true
		close(p.metadata)
	}
	close(p.rendered)
	p.rendered = make(chan struct{})
}

// Detach stops rendering and wakes every waiter. It is idempotent.
func (p *Player) Detach() {
	p.once.Do(func() {
		p.mu.Lock()
		cancel, done := p.cancel, p.done
		close(p.detached)
		p.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
	})
}

// WaitMetadata blocks until the first frame has been rendered.
func (p *Player) WaitMetadata(ctx context.Context) error {
	select {
	case <-p.metadata:
		return nil
	case <-p.detached:
		return fmt.Errorf("wait for stream metadata: %w", ErrAborted)
	case <-ctx.Done():
		return fmt.Errorf("wait for stream metadata: %w: %v", ErrAborted, ctx.Err())
	}
}

// NextFrame blocks until a frame newer than the current one is rendered.
func (p *Player) NextFrame(ctx context.Context) error {
	p.mu.Lock()
	rendered := p.rendered
	p.mu.Unlock()
	select {
	case <-rendered:
		return nil
	case <-p.detached:
		return fmt.Errorf("wait for frame: %w", ErrAborted)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VideoSize reports the native size of the rendered feed. known is false
// until metadata has loaded.
func (p *Player) VideoSize() (width, height int, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height, p.loaded
}

// CurrentFrame returns the most recently rendered frame, or nil.
func (p *Player) CurrentFrame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Frames counts rendered frames.
func (p *Player) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}
