package screenshots

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/offlinefirst/framegrab/pkg/media"
)

// BitmapGrab grabs one frame directly from the stream's first video track
// and encodes it as PNG.
type BitmapGrab struct{}

func (BitmapGrab) Kind() Kind { return KindBitmap }

func (BitmapGrab) Capture(ctx context.Context, target Target) (Image, error) {
	if target.Stream == nil {
		return Image{}, ErrNoVideoTrack
	}
	tracks := target.Stream.VideoTracks()
	if len(tracks) == 0 {
		return Image{}, ErrNoVideoTrack
	}
	grabber, ok := tracks[0].(media.FrameGrabber)
	if !ok {
		return Image{}, fmt.Errorf("track %s: %w", tracks[0].ID(), ErrUnsupported)
	}
	frame, err := grabber.GrabFrame(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("grab frame: %w", err)
	}
	bounds := frame.Bounds()
	if bounds.Empty() {
		return Image{}, ErrZeroDimensions
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, frame); err != nil {
		return Image{}, fmt.Errorf("%w: png: %v", ErrEncodingFailed, err)
	}
	return Image{
		Data:     buf.Bytes(),
		MIME:     "image/png",
		Ext:      "png",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Strategy: KindBitmap,
		Blank:    isBlank(frame),
	}, nil
}
