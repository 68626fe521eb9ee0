package screenshots

import (
	"context"
	"errors"
	"fmt"
)

// Capture failures. ErrUnsupported only ever triggers the fallback strategy.
var (
	ErrNoVideoTrack   = errors.New("stream has no video track")
	ErrZeroDimensions = errors.New("video frame has zero dimensions")
	ErrEncodingFailed = errors.New("encoding still image failed")
	ErrUnsupported    = errors.New("frame grab not supported by track")
)

// Stable reason strings reported with capture failures.
const (
	ReasonNoVideoTrack   = "no_video_track"
	ReasonZeroDimensions = "zero_dimensions"
	ReasonEncodingFailed = "encoding_failed"
	ReasonUnsupported    = "unsupported"
	ReasonAborted        = "aborted"
	ReasonUnknown        = "unknown"
)

// FallbackError is returned when both the primary and the fallback strategy
// failed. The fallback error is the one reported.
type FallbackError struct {
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%v (primary: %v)", e.Fallback, e.Primary)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Fallback, e.Primary}
}

// Reason maps a capture error to its reason string.
func Reason(err error) string {
	var fallback *FallbackError
	if errors.As(err, &fallback) {
		return Reason(fallback.Fallback)
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoVideoTrack):
		return ReasonNoVideoTrack
	case errors.Is(err, ErrZeroDimensions):
		return ReasonZeroDimensions
	case errors.Is(err, ErrEncodingFailed):
		return ReasonEncodingFailed
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonAborted
	default:
		return ReasonUnknown
	}
}
