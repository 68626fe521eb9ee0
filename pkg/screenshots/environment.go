package screenshots

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/offlinefirst/framegrab/pkg/permissions"
)

// StrategyEnv forces a strategy ("bitmap" or "canvas") regardless of platform.
const StrategyEnv = "FRAMEGRAB_STRATEGY"

// DisplayServer identifies the windowing system in use.
type DisplayServer string

const (
	DisplayX11     DisplayServer = "x11"
	DisplayWayland DisplayServer = "wayland"
	DisplayQuartz  DisplayServer = "quartz"
	DisplayWindows DisplayServer = "windows"
	DisplayUnknown DisplayServer = "unknown"
)

// Environment is the raw input to capability detection.
type Environment struct {
	GOOS               string
	DisplayServer      DisplayServer
	VirtualizationRole string
	Permission         permissions.ProbeResult
	Override           string
}

// Capabilities summarise what the platform supports.
type Capabilities struct {
	PreferredStrategy         Kind
	SourcePreferenceSupported bool
	Provider                  string
	Available                 bool
	Permission                string
	Message                   string
	Guidance                  string
}

// DetectEnvironment probes the running host and reports its capabilities.
func DetectEnvironment() Capabilities {
	return Detect(ProbeEnvironment(nil))
}

// ProbeEnvironment gathers the inputs to Detect from the host.
func ProbeEnvironment(lookup permissions.LookupEnvFunc) Environment {
	if lookup == nil {
		lookup = permissions.DefaultLookupEnv
	}
	env := Environment{
		GOOS:          runtime.GOOS,
		DisplayServer: displayServer(runtime.GOOS, lookup),
		Permission:    permissions.ProbeScreenRecording(lookup),
	}
	if value, ok := lookup(StrategyEnv); ok {
		env.Override = strings.ToLower(strings.TrimSpace(value))
	}
	if info, err := host.Info(); err == nil && info != nil {
		env.VirtualizationRole = info.VirtualizationRole
	}
	return env
}

func displayServer(goos string, lookup permissions.LookupEnvFunc) DisplayServer {
	switch goos {
	case "darwin":
		return DisplayQuartz
	case "windows":
		return DisplayWindows
	}
	if value, ok := lookup("DISPLAY"); ok && strings.TrimSpace(value) != "" {
		return DisplayX11
	}
	if value, ok := lookup("WAYLAND_DISPLAY"); ok && strings.TrimSpace(value) != "" {
		return DisplayWayland
	}
	return DisplayUnknown
}

// Detect derives capabilities from env without touching the host.
func Detect(env Environment) Capabilities {
	caps := Capabilities{
		Provider:   string(env.DisplayServer),
		Available:  env.Permission.Usable(),
		Permission: env.Permission.StatusString(),
		Message:    env.Permission.Message,
		Guidance:   env.Permission.Guidance,
	}
	if caps.Provider == "" {
		caps.Provider = string(DisplayUnknown)
	}

	switch env.DisplayServer {
	case DisplayX11, DisplayQuartz, DisplayWindows:
		caps.PreferredStrategy = KindBitmap
		caps.SourcePreferenceSupported = true
	default:
		caps.PreferredStrategy = KindCanvas
	}

	switch Kind(env.Override) {
	case KindBitmap, KindCanvas:
		caps.PreferredStrategy = Kind(env.Override)
		caps.Message = appendNote(caps.Message, "strategy forced via "+StrategyEnv)
	}
	if env.VirtualizationRole == "guest" {
		caps.Message = appendNote(caps.Message, "virtual machine guest, frames may be blank")
	}
	if caps.Message == "" {
		caps.Message = "screen capture available"
	}
	return caps
}

func appendNote(message, note string) string {
	if message == "" {
		return note
	}
	return message + "; " + note
}
