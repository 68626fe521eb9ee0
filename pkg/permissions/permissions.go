// Package permissions reports whether the host will let the process read
// the screen, and whether a native prompt stands between a request and a
// granted stream.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that permission was previously granted.
	StatusGranted Status = "granted"
	// StatusDenied indicates the user has explicitly denied access.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the platform will prompt at runtime.
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable reports that the capability is not supported.
	StatusUnavailable Status = "unavailable"
)

// ScreenRecordingEnv overrides the detected screen recording state.
const ScreenRecordingEnv = "FRAMEGRAB_SCREEN_RECORDING"

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// DefaultLookupEnv is the standard environment resolver.
func DefaultLookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ProbeScreenRecording inspects the execution environment for screen recording permissions.
func ProbeScreenRecording(lookup LookupEnvFunc) ProbeResult {
	return probeScreenRecording(runtime.GOOS, lookup)
}

func probeScreenRecording(goos string, lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = DefaultLookupEnv
	}
	if value, ok := lookup(ScreenRecordingEnv); ok {
		return interpretPermissionFlag("screen recording", value)
	}
	switch goos {
	case "darwin":
		return ProbeResult{
			Status:   StatusPromptRequired,
			Message:  "awaiting macOS screen recording authorisation",
			Guidance: "grant access under System Settings > Privacy & Security > Screen Recording",
		}
	case "windows":
		return ProbeResult{Status: StatusGranted, Message: "desktop duplication available"}
	case "linux", "freebsd", "openbsd", "netbsd":
		if value, ok := lookup("DISPLAY"); ok && strings.TrimSpace(value) != "" {
			return ProbeResult{Status: StatusGranted, Message: "X11 display " + strings.TrimSpace(value) + " readable"}
		}
		if value, ok := lookup("WAYLAND_DISPLAY"); ok && strings.TrimSpace(value) != "" {
			return ProbeResult{
				Status:   StatusUnavailable,
				Message:  "Wayland sessions do not expose the screen to X11 capture",
				Guidance: "run under XWayland with DISPLAY set or use an X11 session",
			}
		}
		return ProbeResult{Status: StatusUnavailable, Message: "no display server detected"}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: "screen recording unsupported on " + goos}
	}
}

func interpretPermissionFlag(name, value string) ProbeResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: name + " permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: name + " permission denied via env override", Guidance: "unset " + ScreenRecordingEnv + " or grant access in the system privacy settings"}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: name + " permission will prompt at runtime"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: name + " permission unavailable on this platform"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
}

// Usable reports whether a capture attempt can proceed, possibly after a prompt.
func (p ProbeResult) Usable() bool {
	switch p.Status {
	case StatusGranted, StatusPromptRequired, StatusUnknown, "":
		return true
	default:
		return false
	}
}

// StatusString returns the string representation used in diagnostics.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
