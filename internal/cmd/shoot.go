package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/framegrab/internal/buildinfo"
	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/elapsed"
	"github.com/offlinefirst/framegrab/pkg/output"
)

type shootOptions struct {
	delay    float64
	count    int
	interval time.Duration
	timeout  time.Duration
	source   string
	display  int
	outDir   string
	timeline bool
	jsonOut  bool
	manifest bool
}

// shotResult is one attempt's outcome, keyed by request order.
type shotResult struct {
	Sequence int           `json:"sequence,omitempty"`
	Filename string        `json:"filename,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Blank    bool          `json:"blank,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Path     string        `json:"path,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type shootReport struct {
	SessionID string                  `json:"session_id,omitempty"`
	Shots     []shotResult            `json:"shots"`
	Timeline  []capture.TimelineEntry `json:"timeline,omitempty"`
	Manifest  string                  `json:"manifest,omitempty"`
}

// Overridable in tests.
var (
	timeNow  = time.Now
	hostname = os.Hostname
)

// Overridable in tests.
var sleep = func(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newShootCommand(rc *rootCommand) *cobra.Command {
	opts := shootOptions{}
	cmd := &cobra.Command{
		Use:   "shoot",
		Short: "Share a screen, capture one or more stills, and stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rc.ensureAppContext(nil)
			if err != nil {
				return err
			}
			applySourceFlags(cmd, app, opts.source, opts.display)
			if cmd.Flags().Changed("out") {
				app.Config.Output.DownloadDir = opts.outDir
			}
			return runShoot(cmd.Context(), app, opts, rc.stdout)
		},
	}
	flags := cmd.Flags()
	flags.Float64Var(&opts.delay, "delay", 0, "Seconds to wait before each capture")
	flags.IntVar(&opts.count, "count", 1, "Number of stills to capture")
	flags.DurationVar(&opts.interval, "interval", time.Second, "Pause between stills when --count > 1")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up waiting for a still after this long")
	flags.StringVar(&opts.source, "source", "", "Capture source override (auto, display, synthetic)")
	flags.IntVar(&opts.display, "display", 0, "Display index to share")
	flags.StringVar(&opts.outDir, "out", "", "Directory to save stills into")
	flags.BoolVar(&opts.timeline, "timeline", false, "Print the session state timeline")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	flags.BoolVar(&opts.manifest, "manifest", false, "Write a session manifest next to the stills")
	return cmd
}

func applySourceFlags(cmd *cobra.Command, app *AppContext, source string, display int) {
	if cmd.Flags().Changed("source") {
		app.Config.Capture.Source = source
	}
	if cmd.Flags().Changed("display") {
		app.Config.Capture.DisplayIndex = display
	}
}

func runShoot(ctx context.Context, app *AppContext, opts shootOptions, stdout io.Writer) error {
	if opts.count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	delay, err := capture.DelayFromSeconds(opts.delay)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	results := make(chan capture.Event, opts.count+4)
	s, err := newSession(app, sessionOptions{
		ForceDownload: true,
		Listeners: []capture.Listener{func(ev capture.Event) {
			if ev.Kind != capture.EventScreenshot && ev.Kind != capture.EventCaptureFailed {
				return
			}
			select {
			case results <- ev:
			default:
			}
		}},
	})
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		saved = make(map[int]output.Saved)
	)
	s.onSaved = func(sv output.Saved) {
		mu.Lock()
		saved[sv.Blob.Sequence] = sv
		mu.Unlock()
	}

	report := shootReport{}
	startedAt := timeNow()
	runErr := s.run(ctx, func(ctx context.Context) error {
		if err := s.controller.RequestCapture(ctx, capture.Request{}); err != nil {
			return err
		}
		if snap, err := s.controller.Snapshot(ctx); err == nil {
			report.SessionID = snap.SessionID
		}
		for i := 0; i < opts.count; i++ {
			if i > 0 {
				if err := sleep(ctx, opts.interval); err != nil {
					return err
				}
			}
			res, err := shootOnce(ctx, s.controller, delay, opts.timeout, results)
			if err != nil {
				return err
			}
			report.Shots = append(report.Shots, res)
		}
		return nil
	})

	mu.Lock()
	for i := range report.Shots {
		if sv, ok := saved[report.Shots[i].Sequence]; ok && report.Shots[i].Sequence > 0 {
			report.Shots[i].Path = sv.Path
			if sv.Err != nil {
				report.Shots[i].Error = sv.Err.Error()
			}
		}
	}
	mu.Unlock()
	if opts.timeline {
		report.Timeline = s.controller.Timeline()
	}
	if opts.manifest {
		path, err := writeManifest(app, s, report, startedAt, runErr)
		if err != nil {
			app.Logger.Error("write manifest", "error", err)
		} else {
			report.Manifest = path
		}
	}

	if err := printReport(stdout, report, opts.jsonOut); err != nil {
		return err
	}
	if runErr != nil {
		var acquireErr *capture.AcquireError
		if errors.As(runErr, &acquireErr) {
			return fmt.Errorf("screen capture not started (%s): %w", acquireErr.Kind, acquireErr.Err)
		}
		return runErr
	}
	for _, shot := range report.Shots {
		if shot.Error != "" {
			return fmt.Errorf("one or more captures failed")
		}
	}
	return nil
}

func shootOnce(ctx context.Context, ctrl *capture.Controller, delay, timeout time.Duration, results <-chan capture.Event) (shotResult, error) {
	if err := ctrl.CaptureNow(ctx, delay); err != nil {
		return shotResult{}, err
	}
	wait := time.NewTimer(delay + timeout)
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return shotResult{}, ctx.Err()
	case <-wait.C:
		return shotResult{}, fmt.Errorf("no screenshot within %s", delay+timeout)
	case ev := <-results:
		if ev.Kind == capture.EventCaptureFailed {
			msg := ev.Reason
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			return shotResult{Error: msg}, nil
		}
		shot := ev.Screenshot
		return shotResult{
			Sequence: shot.Sequence,
			Filename: shot.Filename,
			Width:    shot.Image.Width,
			Height:   shot.Image.Height,
			Strategy: string(shot.Image.Strategy),
			Blank:    shot.Image.Blank,
			Elapsed:  shot.Elapsed,
		}, nil
	}
}

func printReport(w io.Writer, report shootReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if report.SessionID != "" {
		fmt.Fprintf(w, "Session %s\n", report.SessionID)
	}
	for _, shot := range report.Shots {
		if shot.Sequence == 0 {
			fmt.Fprintf(w, "  capture failed: %s\n", shot.Error)
			continue
		}
		fmt.Fprintf(w, "  #%d %s %dx%d %s @ %s", shot.Sequence, shot.Filename, shot.Width, shot.Height, shot.Strategy, elapsed.Format(shot.Elapsed))
		if shot.Blank {
			fmt.Fprint(w, " (blank)")
		}
		switch {
		case shot.Error != "":
			fmt.Fprintf(w, " save failed: %s", shot.Error)
		case shot.Path != "":
			fmt.Fprintf(w, " -> %s", shot.Path)
		}
		fmt.Fprintln(w)
	}
	if report.Manifest != "" {
		fmt.Fprintf(w, "Manifest: %s\n", report.Manifest)
	}
	if len(report.Timeline) > 0 {
		fmt.Fprintln(w, "Timeline:")
		for _, entry := range report.Timeline {
			fmt.Fprintf(w, "  %s %-10s %s\n", entry.Timestamp.Format(time.RFC3339), entry.State, entry.Reason)
		}
	}
	return nil
}

func writeManifest(app *AppContext, s *session, report shootReport, startedAt time.Time, runErr error) (string, error) {
	dir := app.Config.Output.DownloadDir
	runID, err := output.ResolveRunID(dir, startedAt)
	if err != nil {
		return "", err
	}
	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	endedAt := timeNow().UTC()
	started := startedAt.UTC()

	man := output.Manifest{
		SchemaVersion: output.ManifestSchemaVersion,
		RunID:         runID,
		SessionID:     report.SessionID,
		CreatedAt:     started,
		Hostname:      host,
		AppVersion:    buildinfo.Version(),
		ConfigSource:  app.Config.Source,
		Capture: output.ManifestCapture{
			Source:     s.source.Name(),
			Provider:   s.caps.Provider,
			Strategy:   string(s.caps.PreferredStrategy),
			Permission: s.caps.Permission,
			FrameRate:  app.Config.Capture.FrameRate,
		},
		Status: output.ManifestStatus{
			State:     output.ManifestCompleted,
			StartedAt: &started,
			EndedAt:   &endedAt,
			Timeline:  s.controller.Timeline(),
		},
	}
	failed := 0
	for _, shot := range report.Shots {
		entry := output.ManifestShot{
			Sequence: shot.Sequence,
			Filename: shot.Filename,
			Path:     shot.Path,
			Blank:    shot.Blank,
			Error:    shot.Error,
		}
		if shot.Sequence > 0 {
			entry.Elapsed = elapsed.Format(shot.Elapsed)
		}
		if shot.Error != "" {
			failed++
		}
		man.Shots = append(man.Shots, entry)
	}
	switch {
	case runErr != nil:
		man.Status.State = output.ManifestFailed
		man.Status.Summary = runErr.Error()
	case failed > 0:
		man.Status.State = output.ManifestPartial
		man.Status.Summary = fmt.Sprintf("%d of %d captures failed", failed, len(report.Shots))
	default:
		man.Status.Summary = fmt.Sprintf("%d stills captured", len(report.Shots))
	}

	path := output.ManifestPath(dir, runID)
	if err := output.SaveManifest(man, path); err != nil {
		return "", err
	}
	return path, nil
}
