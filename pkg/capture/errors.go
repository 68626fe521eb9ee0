package capture

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/offlinefirst/framegrab/pkg/media"
)

var (
	// ErrNotActive rejects triggers that need an open stream.
	ErrNotActive = errors.New("screen capture is not active")
	// ErrAlreadyActive rejects a request while a session exists or is being requested.
	ErrAlreadyActive = errors.New("screen capture already active")
	// ErrDelayPending rejects a capture while a delayed capture is scheduled.
	ErrDelayPending = errors.New("a delayed screenshot is already pending")
	// ErrCaptureInFlight rejects a capture while a still is being produced.
	ErrCaptureInFlight = errors.New("a screenshot is already being captured")
	// ErrInvalidDelay rejects a delay that is negative, not a number, or too
	// long to represent as a time.Duration.
	ErrInvalidDelay = errors.New("delay must be a non-negative number of seconds")
)

var maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// DelayFromSeconds converts a trigger delay given in seconds.
func DelayFromSeconds(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || seconds < 0 || seconds >= maxDelaySeconds {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidDelay, seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// AcquireError reports why a stream could not be acquired.
type AcquireError struct {
	Kind media.FailureKind
	Err  error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire stream: %s", e.Kind)
	}
	return fmt.Sprintf("acquire stream (%s): %v", e.Kind, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

func newAcquireError(err error) *AcquireError {
	return &AcquireError{Kind: media.Classify(err), Err: err}
}
