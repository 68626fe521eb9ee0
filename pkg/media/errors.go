package media

import (
	"context"
	"errors"
	"strings"
)

// Acquisition failures reported by a Source.
var (
	ErrPermissionDenied  = errors.New("screen capture permission denied")
	ErrNoSourceAvailable = errors.New("no screen capture source available")
	ErrUnsupported       = errors.New("screen capture not supported on this platform")
	ErrAborted           = errors.New("screen capture request aborted")
)

// FailureKind names an acquisition failure class.
type FailureKind string

const (
	FailurePermissionDenied  FailureKind = "permission_denied"
	FailureNoSourceAvailable FailureKind = "no_source_available"
	FailureUnsupported       FailureKind = "unsupported"
	FailureAborted           FailureKind = "aborted"
	FailureUnknown           FailureKind = "unknown"
)

// Classify maps an acquisition error onto its failure kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, ErrNoSourceAvailable):
		return FailureNoSourceAvailable
	case errors.Is(err, ErrUnsupported):
		return FailureUnsupported
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureAborted
	default:
		return FailureUnknown
	}
}

// sourceError carries a platform message while matching one of the sentinels.
type sourceError struct {
	kind    error
	message string
}

func (e *sourceError) Error() string {
	return e.message
}

func (e *sourceError) Is(target error) bool {
	return target == e.kind
}

func newSourceError(kind error, message string) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return kind
	}
	return &sourceError{kind: kind, message: trimmed}
}
