package capture

import (
	"fmt"

	"github.com/offlinefirst/framegrab/pkg/media"
)

const (
	msgRequesting     = "Requesting screen capture permission..."
	msgReady          = "Screen capture ready! Press the screenshot trigger to capture."
	msgCapturing      = "Taking screenshot..."
	msgCaptured       = "Screenshot captured! Ready for next capture."
	msgBlank          = "Screenshot may be black due to platform security restrictions. Try selecting a different screen."
	msgStopped        = "Screen capture stopped."
	msgEnded          = "Screen sharing ended by user."
	msgRequestStopped = "Screen capture request cancelled."
	msgDelayCancelled = "Delayed screenshot cancelled."
)

func acquireMessage(kind media.FailureKind, err error) string {
	prefix := "Failed to start screen capture: "
	switch kind {
	case media.FailurePermissionDenied:
		return prefix + "Permission denied by user."
	case media.FailureNoSourceAvailable:
		return prefix + "No screen capture source available."
	case media.FailureUnsupported:
		return prefix + "Screen capture not supported on this platform."
	case media.FailureAborted:
		return prefix + "Screen capture was aborted."
	}
	if err == nil || err.Error() == "" {
		return prefix + "Unknown error occurred."
	}
	return prefix + err.Error()
}

func unavailableMessage(err error) string {
	return "Screen capture unavailable: " + err.Error()
}

func delayMessage(remaining float64) string {
	return fmt.Sprintf("Screenshot in %.1f seconds...", remaining)
}

func captureFailedMessage(err error) string {
	return "Failed to capture screenshot: " + err.Error()
}
