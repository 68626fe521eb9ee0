package screenshots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

const (
	// DefaultSurfaceWidth and DefaultSurfaceHeight size the surface when the
	// sink has not reported a native size yet.
	DefaultSurfaceWidth  = 1280
	DefaultSurfaceHeight = 720
	// JPEGQuality is the fixed encode quality of sampled stills.
	JPEGQuality = 92
	// DefaultPlaybackWait bounds the wait for the sink to render a frame.
	DefaultPlaybackWait = 500 * time.Millisecond
)

// CanvasSampler draws the sink's current frame onto a white surface at the
// sink's native size and encodes it as JPEG.
type CanvasSampler struct {
	// PlaybackWait overrides DefaultPlaybackWait when positive.
	PlaybackWait time.Duration
}

func (CanvasSampler) Kind() Kind { return KindCanvas }

func (c CanvasSampler) Capture(ctx context.Context, target Target) (Image, error) {
	if target.Player == nil || target.Stream == nil || len(target.Stream.VideoTracks()) == 0 {
		return Image{}, ErrNoVideoTrack
	}
	player := target.Player
	if player.Frames() == 0 {
		wait := c.PlaybackWait
		if wait <= 0 {
			wait = DefaultPlaybackWait
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := player.NextFrame(waitCtx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return Image{}, fmt.Errorf("wait for playback: %w", err)
		}
		if ctx.Err() != nil {
			return Image{}, ctx.Err()
		}
	}

	width, height, known := player.VideoSize()
	switch {
	case !known:
		width, height = DefaultSurfaceWidth, DefaultSurfaceHeight
	case width <= 0 || height <= 0:
		return Image{}, ErrZeroDimensions
	}

	surface := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(surface, surface.Bounds(), image.White, image.Point{}, draw.Src)
	if frame := player.CurrentFrame(); frame != nil && !frame.Bounds().Empty() {
		draw.ApproxBiLinear.Scale(surface, surface.Bounds(), frame, frame.Bounds(), draw.Over, nil)
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, surface, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Image{}, fmt.Errorf("%w: jpeg: %v", ErrEncodingFailed, err)
	}
	return Image{
		Data:     buf.Bytes(),
		MIME:     "image/jpeg",
		Ext:      "jpg",
		Width:    width,
		Height:   height,
		Strategy: KindCanvas,
		Blank:    isBlank(surface),
	}, nil
}
