package capture

import (
	"time"

	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

// EventKind names a controller notification.
type EventKind string

const (
	EventStatus        EventKind = "status"
	EventButtons       EventKind = "buttons"
	EventState         EventKind = "state"
	EventScreenshot    EventKind = "screenshot"
	EventCaptureFailed EventKind = "capture_failed"
	EventCountdown     EventKind = "countdown"
	EventElapsed       EventKind = "elapsed"
)

// Severity classifies status messages.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityReady Severity = "ready"
	SeverityError Severity = "error"
)

// Status is a user-facing message.
type Status struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Screenshot is one captured still.
type Screenshot struct {
	Sequence   int               `json:"sequence"`
	Filename   string            `json:"filename"`
	CapturedAt time.Time         `json:"captured_at"`
	Elapsed    time.Duration     `json:"elapsed"`
	SessionID  string            `json:"session_id"`
	Image      screenshots.Image `json:"-"`
}

// Event is delivered to listeners. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind
	At         time.Time
	State      State
	Status     Status
	Buttons    Buttons
	Screenshot *Screenshot
	Remaining  time.Duration
	Elapsed    time.Duration
	Reason     string
	Err        error
}

// Listener receives events on the controller's loop goroutine. It must not
// block and must not call back into the controller synchronously.
type Listener func(Event)
