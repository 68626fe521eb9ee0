package capture

import "time"

// State is a capture session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateReady      State = "ready"
	StateDelaying   State = "delaying"
	StateStopped    State = "stopped"
)

// Active reports whether a stream is open in this state.
func (s State) Active() bool {
	return s == StateReady || s == StateDelaying
}

// Buttons is the trigger availability derived from the session state.
type Buttons struct {
	Start       bool `json:"start"`
	Screenshot  bool `json:"screenshot"`
	Stop        bool `json:"stop"`
	CancelDelay bool `json:"cancel_delay"`
}

func buttonsFor(state State, inFlight, available bool) Buttons {
	return Buttons{
		Start:       state == StateIdle && available,
		Screenshot:  state == StateReady && !inFlight,
		Stop:        state.Active(),
		CancelDelay: state == StateDelaying,
	}
}

// TimelineEntry records a controller state transition.
type TimelineEntry struct {
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State        State         `json:"state"`
	Buttons      Buttons       `json:"buttons"`
	Status       Status        `json:"status"`
	SessionID    string        `json:"session_id,omitempty"`
	Strategy     string        `json:"strategy"`
	Elapsed      time.Duration `json:"elapsed"`
	Remaining    time.Duration `json:"remaining,omitempty"`
	NextSequence int           `json:"next_sequence"`
	InFlight     bool          `json:"in_flight"`
}
