package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/framegrab/pkg/config"
	"github.com/offlinefirst/framegrab/pkg/media"
	"github.com/offlinefirst/framegrab/pkg/output"
	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubCapabilities(t *testing.T, caps screenshots.Capabilities) {
	t.Helper()
	orig := detectCapabilities
	detectCapabilities = func() screenshots.Capabilities { return caps }
	t.Cleanup(func() { detectCapabilities = orig })
}

func syntheticApp(t *testing.T) *AppContext {
	t.Helper()
	stubCapabilities(t, screenshots.Capabilities{PreferredStrategy: screenshots.KindBitmap, Available: true, Provider: "x11"})
	cfg := config.Default()
	cfg.Capture.Source = config.SourceSynthetic
	cfg.Capture.FrameRate = 20
	cfg.Capture.TickInterval = 10 * time.Millisecond
	cfg.Output.DownloadDir = t.TempDir()
	cfg.Output.Metadata = true
	return &AppContext{Config: cfg, Logger: newTestLogger()}
}

func TestVersionCommand(t *testing.T) {
	origVersion, origGOOS := runtimeVersion, runtimeGOOS
	runtimeVersion = func() string { return "go1.99" }
	runtimeGOOS = func() string { return "plan9" }
	defer func() { runtimeVersion, runtimeGOOS = origVersion, origGOOS }()

	var stdout bytes.Buffer
	root := newRootCommand(&stdout, io.Discard)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); !strings.HasSuffix(got, "(go1.99/plan9)") {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestShootSavesStills(t *testing.T) {
	app := syntheticApp(t)

	var stdout bytes.Buffer
	err := runShoot(context.Background(), app, shootOptions{count: 2, timeout: 5 * time.Second, timeline: true}, &stdout)
	if err != nil {
		t.Fatalf("runShoot: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{"#1 screenshot-1-", "#2 screenshot-2-", "640x400 bitmap", "Timeline:", "ready", "idle"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	pngs, _ := filepath.Glob(filepath.Join(app.Config.Output.DownloadDir, "*.png"))
	if len(pngs) != 2 {
		t.Fatalf("expected 2 saved stills, got %v", pngs)
	}
	sidecars, _ := filepath.Glob(filepath.Join(app.Config.Output.DownloadDir, "screenshot-*.json"))
	if len(sidecars) != 2 {
		t.Fatalf("expected 2 metadata files, got %v", sidecars)
	}
}

func TestShootJSONReportWithDelay(t *testing.T) {
	app := syntheticApp(t)

	var stdout bytes.Buffer
	err := runShoot(context.Background(), app, shootOptions{count: 1, delay: 0.05, timeout: 5 * time.Second, jsonOut: true}, &stdout)
	if err != nil {
		t.Fatalf("runShoot: %v", err)
	}
	var report shootReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout.String())
	}
	if report.SessionID == "" || len(report.Shots) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	shot := report.Shots[0]
	if shot.Sequence != 1 || shot.Path == "" || shot.Error != "" {
		t.Fatalf("unexpected shot %+v", shot)
	}
	if _, err := os.Stat(shot.Path); err != nil {
		t.Fatalf("saved still missing: %v", err)
	}
}

func TestShootWritesManifest(t *testing.T) {
	app := syntheticApp(t)
	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	origTime, origHost := timeNow, hostname
	timeNow = func() time.Time { return now }
	hostname = func() (string, error) { return "test-host", nil }
	defer func() { timeNow, hostname = origTime, origHost }()

	var stdout bytes.Buffer
	if err := runShoot(context.Background(), app, shootOptions{count: 1, timeout: 5 * time.Second, manifest: true}, &stdout); err != nil {
		t.Fatalf("runShoot: %v", err)
	}

	path := output.ManifestPath(app.Config.Output.DownloadDir, "20240512_093000")
	man, err := output.LoadManifest(path)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if man.Status.State != output.ManifestCompleted || man.Hostname != "test-host" {
		t.Fatalf("unexpected manifest status %+v", man)
	}
	if man.Capture.Source != "synthetic" || len(man.Shots) != 1 || man.Shots[0].Path == "" {
		t.Fatalf("unexpected manifest contents %+v", man)
	}
	if len(man.Status.Timeline) == 0 {
		t.Fatalf("expected controller timeline in manifest")
	}
	if !strings.Contains(stdout.String(), "Manifest: "+path) {
		t.Fatalf("expected manifest path in output:\n%s", stdout.String())
	}
}

func TestShootValidatesOptions(t *testing.T) {
	app := syntheticApp(t)
	tests := []struct {
		name string
		opts shootOptions
	}{
		{"zero count", shootOptions{count: 0}},
		{"negative delay", shootOptions{count: 1, delay: -1}},
		{"overflowing delay", shootOptions{count: 1, delay: 1e300}},
	}
	for _, tt := range tests {
		if err := runShoot(context.Background(), app, tt.opts, io.Discard); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestShootReportsDeniedPermission(t *testing.T) {
	app := syntheticApp(t)
	app.Config.Capture.Source = config.SourceDisplay
	orig := newDisplaySource
	newDisplaySource = func(media.DisplayOptions) media.Source {
		return media.NewSyntheticSource(media.SyntheticOptions{Err: media.ErrPermissionDenied})
	}
	defer func() { newDisplaySource = orig }()

	err := runShoot(context.Background(), app, shootOptions{count: 1, timeout: time.Second}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "permission_denied") {
		t.Fatalf("expected permission error, got %v", err)
	}
}

type unsupportedDisplay struct {
	*media.SyntheticSource
}

func (unsupportedDisplay) Name() string { return "display" }
func (unsupportedDisplay) Probe() error { return media.ErrUnsupported }

func TestShootAutoSourceReportsUnsupportedDisplay(t *testing.T) {
	app := syntheticApp(t)
	app.Config.Capture.Source = config.SourceAuto
	orig := newDisplaySource
	newDisplaySource = func(media.DisplayOptions) media.Source {
		return unsupportedDisplay{media.NewSyntheticSource(media.SyntheticOptions{})}
	}
	defer func() { newDisplaySource = orig }()

	err := runShoot(context.Background(), app, shootOptions{count: 1, timeout: time.Second}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	entries, _ := os.ReadDir(app.Config.Output.DownloadDir)
	if len(entries) != 0 {
		t.Fatalf("no stills may be written without a real display, got %d files", len(entries))
	}
}

type checkedDisplay struct {
	media.Source
	err error
}

func (p checkedDisplay) Name() string { return "display" }
func (p checkedDisplay) Probe() error { return p.err }

func TestBuildSource(t *testing.T) {
	orig := newDisplaySource
	defer func() { newDisplaySource = orig }()

	tests := []struct {
		name       string
		source     string
		displayErr error
		want       string
		wantErr    bool
	}{
		{"synthetic", config.SourceSynthetic, nil, "synthetic", false},
		{"display", config.SourceDisplay, media.ErrUnsupported, "display", false},
		{"auto with display", config.SourceAuto, nil, "display", false},
		{"auto without display", config.SourceAuto, media.ErrNoSourceAvailable, "display", false},
		{"auto on unsupported host", config.SourceAuto, media.ErrUnsupported, "display", false},
		{"auto keeps denied display", config.SourceAuto, media.ErrPermissionDenied, "display", false},
		{"unknown", "webcam", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newDisplaySource = func(media.DisplayOptions) media.Source { return checkedDisplay{err: tt.displayErr} }
			src, err := buildSource(config.CaptureConfig{Source: tt.source}, newTestLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSource: %v", err)
			}
			if src.Name() != tt.want {
				t.Fatalf("expected %s source, got %s", tt.want, src.Name())
			}
		})
	}
}

func TestCapabilitiesForAppliesStrategyOverride(t *testing.T) {
	stubCapabilities(t, screenshots.Capabilities{PreferredStrategy: screenshots.KindBitmap, Available: false, Provider: "unknown"})

	caps := capabilitiesFor(config.CaptureConfig{Strategy: "Canvas"}, checkedDisplay{})
	if caps.PreferredStrategy != screenshots.KindCanvas || caps.Available {
		t.Fatalf("unexpected caps %+v", caps)
	}

	caps = capabilitiesFor(config.CaptureConfig{Strategy: "auto"}, media.NewSyntheticSource(media.SyntheticOptions{}))
	if caps.PreferredStrategy != screenshots.KindBitmap || !caps.Available || caps.Provider != "synthetic" {
		t.Fatalf("unexpected synthetic caps %+v", caps)
	}
}

func TestDoctorReportsDisplays(t *testing.T) {
	stubCapabilities(t, screenshots.Capabilities{
		PreferredStrategy: screenshots.KindBitmap,
		Available:         true,
		Provider:          "x11",
		Permission:        "granted",
		Message:           "screen capture available",
	})
	orig := listDisplays
	listDisplays = func() []media.Display {
		return []media.Display{{Index: 0, Bounds: image.Rect(0, 0, 1920, 1080)}}
	}
	defer func() { listDisplays = orig }()

	var stdout bytes.Buffer
	if err := runDoctor(&AppContext{Config: config.Default(), Logger: newTestLogger()}, &stdout); err != nil {
		t.Fatalf("runDoctor: %v", err)
	}
	for _, want := range []string{"Provider:    x11", "Permission:  granted", "Displays:    1", "[0] 1920x1080 at 0,0"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("doctor output missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestDoctorFailsWhenUnavailable(t *testing.T) {
	stubCapabilities(t, screenshots.Capabilities{Provider: "unknown", Permission: "unavailable", Message: "no display server"})
	var stdout bytes.Buffer
	err := runDoctor(&AppContext{Config: config.Default(), Logger: newTestLogger()}, &stdout)
	if err == nil || !strings.Contains(err.Error(), "no display server") {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "Displays:    0") {
		t.Fatalf("expected no displays listed:\n%s", stdout.String())
	}
}

func TestConfigCommandPrintsResolvedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framegrab.yaml")
	if err := os.WriteFile(path, []byte("capture:\n  frame_rate: 5\noutput:\n  download_dir: shots\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout bytes.Buffer
	root := newRootCommand(&stdout, io.Discard)
	root.SetArgs([]string{"--config", path, "--log-level", "error", "config"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"# source: " + path, "frame_rate: 5", "download_dir: shots"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	root := newRootCommand(io.Discard, io.Discard)
	root.SetArgs([]string{"--log-level", "loud", "config"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
}
