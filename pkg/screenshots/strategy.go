// Package screenshots turns the current frame of a live stream into an
// encoded still image. Two strategies exist: a direct bitmap grab from the
// video track and a sampler that redraws the rendered frame onto a surface.
package screenshots

import (
	"context"
	"image"

	"github.com/offlinefirst/framegrab/pkg/media"
)

// Kind names a frame acquisition strategy.
type Kind string

const (
	KindBitmap Kind = "bitmap"
	KindCanvas Kind = "canvas"
)

// Image is an encoded still.
type Image struct {
	Data     []byte
	MIME     string
	Ext      string
	Width    int
	Height   int
	Strategy Kind
	// Blank is set when the sampled corner of the frame is entirely dark,
	// which usually means the platform withheld the screen contents.
	Blank bool
}

// Target is what a strategy reads from.
type Target struct {
	Stream *media.Stream
	Player *media.Player
}

// Strategy converts the current frame of a target into an Image.
type Strategy interface {
	Kind() Kind
	Capture(ctx context.Context, target Target) (Image, error)
}

// blankThreshold is the per-channel value below which a pixel counts as dark.
const blankThreshold = 10

// isBlank inspects at most the top-left 100x100 pixels of img.
func isBlank(img image.Image) bool {
	bounds := img.Bounds()
	maxX := min(bounds.Min.X+100, bounds.Max.X)
	maxY := min(bounds.Min.Y+100, bounds.Max.Y)
	for y := bounds.Min.Y; y < maxY; y++ {
		for x := bounds.Min.X; x < maxX; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 > blankThreshold || g>>8 > blankThreshold || b>>8 > blankThreshold {
				return false
			}
		}
	}
	return true
}
