package server

import (
	"time"

	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/elapsed"
	"github.com/offlinefirst/framegrab/pkg/output"
)

type MessageType string

const (
	MsgSnapshot      MessageType = "snapshot"
	MsgState         MessageType = "state"
	MsgStatus        MessageType = "status"
	MsgButtons       MessageType = "buttons"
	MsgScreenshot    MessageType = "screenshot"
	MsgCaptureFailed MessageType = "capture_failed"
	MsgCountdown     MessageType = "countdown"
	MsgElapsed       MessageType = "elapsed"
	MsgSaved         MessageType = "saved"
	MsgError         MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// CommandType names an inbound client request.
type CommandType string

const (
	CmdStart       CommandType = "start"
	CmdScreenshot  CommandType = "screenshot"
	CmdStop        CommandType = "stop"
	CmdCancelDelay CommandType = "cancel_delay"
)

// Command is sent by clients over the socket or POSTed to /api/command.
// Delay is in seconds and only applies to screenshot.
type Command struct {
	Type  CommandType `json:"type"`
	Delay float64     `json:"delay,omitempty"`
}

type StatePayload struct {
	State capture.State `json:"state"`
}

type CountdownPayload struct {
	RemainingMs int64   `json:"remaining_ms"`
	Remaining   float64 `json:"remaining"`
}

type ElapsedPayload struct {
	ElapsedMs int64  `json:"elapsed_ms"`
	Display   string `json:"display"`
}

type ScreenshotPayload struct {
	BlobID     string    `json:"blob_id"`
	URL        string    `json:"url"`
	Sequence   int       `json:"sequence"`
	Filename   string    `json:"filename"`
	MIME       string    `json:"mime"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Strategy   string    `json:"strategy"`
	Blank      bool      `json:"blank,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Elapsed    string    `json:"elapsed"`
	SessionID  string    `json:"session_id"`
}

type CaptureFailedPayload struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type SavedPayload struct {
	Sequence int    `json:"sequence"`
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorPayload struct {
	Command CommandType `json:"command,omitempty"`
	Message string      `json:"message"`
}

type SnapshotPayload struct {
	capture.Snapshot
	ElapsedDisplay string `json:"elapsed_display"`
}

func blobURL(id string) string { return "/blobs/" + id }

// eventMessage converts a controller event. blob is only consulted for
// screenshots.
func eventMessage(ev capture.Event, blob output.Blob) (WSMessage, bool) {
	switch ev.Kind {
	case capture.EventState:
		return WSMessage{Type: MsgState, Payload: StatePayload{State: ev.State}}, true
	case capture.EventStatus:
		return WSMessage{Type: MsgStatus, Payload: ev.Status}, true
	case capture.EventButtons:
		return WSMessage{Type: MsgButtons, Payload: ev.Buttons}, true
	case capture.EventCountdown:
		return WSMessage{Type: MsgCountdown, Payload: CountdownPayload{
			RemainingMs: ev.Remaining.Milliseconds(),
			Remaining:   ev.Remaining.Seconds(),
		}}, true
	case capture.EventElapsed:
		return WSMessage{Type: MsgElapsed, Payload: ElapsedPayload{
			ElapsedMs: ev.Elapsed.Milliseconds(),
			Display:   elapsed.Format(ev.Elapsed),
		}}, true
	case capture.EventCaptureFailed:
		p := CaptureFailedPayload{Reason: ev.Reason}
		if ev.Err != nil {
			p.Error = ev.Err.Error()
		}
		return WSMessage{Type: MsgCaptureFailed, Payload: p}, true
	case capture.EventScreenshot:
		if ev.Screenshot == nil {
			return WSMessage{}, false
		}
		shot := ev.Screenshot
		return WSMessage{Type: MsgScreenshot, Payload: ScreenshotPayload{
			BlobID:     blob.ID,
			URL:        blobURL(blob.ID),
			Sequence:   shot.Sequence,
			Filename:   shot.Filename,
			MIME:       shot.Image.MIME,
			Width:      shot.Image.Width,
			Height:     shot.Image.Height,
			Strategy:   string(shot.Image.Strategy),
			Blank:      shot.Image.Blank,
			CapturedAt: shot.CapturedAt,
			Elapsed:    elapsed.Format(shot.Elapsed),
			SessionID:  shot.SessionID,
		}}, true
	}
	return WSMessage{}, false
}

func savedMessage(saved output.Saved) WSMessage {
	p := SavedPayload{Sequence: saved.Blob.Sequence, Filename: saved.Blob.Filename, Path: saved.Path}
	if saved.Err != nil {
		p.Error = saved.Err.Error()
	}
	return WSMessage{Type: MsgSaved, Payload: p}
}
