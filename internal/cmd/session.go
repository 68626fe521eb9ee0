package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/config"
	"github.com/offlinefirst/framegrab/pkg/logging"
	"github.com/offlinefirst/framegrab/pkg/loop"
	"github.com/offlinefirst/framegrab/pkg/media"
	"github.com/offlinefirst/framegrab/pkg/output"
	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

const stopTimeout = 5 * time.Second

type sessionOptions struct {
	// Listeners are registered before the loop starts.
	Listeners []capture.Listener
	// ForceDownload saves stills even when output.auto_download is off.
	ForceDownload bool
	// ExternalSink leaves routing screenshot events into the sink to the caller.
	ExternalSink bool
}

// session bundles one controller with its loop and output sink.
type session struct {
	logger     *slog.Logger
	loop       *loop.Loop
	controller *capture.Controller
	sink       *output.Sink
	caps       screenshots.Capabilities
	source     media.Source

	// onSaved must be set before run.
	onSaved func(output.Saved)
}

// Overridable in tests.
var (
	detectCapabilities = screenshots.DetectEnvironment
	newDisplaySource   = func(opts media.DisplayOptions) media.Source { return media.NewDisplaySource(opts) }
)

func newSession(app *AppContext, opts sessionOptions) (*session, error) {
	cfg := app.Config
	logger := app.Logger

	source, err := buildSource(cfg.Capture, logger)
	if err != nil {
		return nil, err
	}
	caps := capabilitiesFor(cfg.Capture, source)

	var downloader *output.Downloader
	if cfg.Output.AutoDownload || opts.ForceDownload {
		downloader, err = output.NewDownloader(cfg.Output.DownloadDir, cfg.Output.Metadata)
		if err != nil {
			return nil, err
		}
	}

	s := &session{
		logger: logger,
		loop:   loop.New(0),
		caps:   caps,
		source: source,
	}
	s.sink = output.NewSink(output.Options{
		Retention:  cfg.Output.Retention,
		Downloader: downloader,
		Logger:     logger,
		OnSaved: func(saved output.Saved) {
			if s.onSaved != nil {
				s.onSaved(saved)
			}
		},
	})

	listeners := append([]capture.Listener(nil), opts.Listeners...)
	if !opts.ExternalSink {
		listeners = append(listeners, s.sink.Listener())
	}

	s.controller, err = capture.New(capture.Options{
		Loop:                 s.loop,
		Source:               source,
		Capabilities:         caps,
		Logger:               logger,
		FrameRate:            cfg.Capture.FrameRate,
		PreferCurrentDisplay: cfg.Capture.PreferCurrentDisplay,
		TickInterval:         cfg.Capture.TickInterval,
		ElapsedInterval:      cfg.Capture.ElapsedInterval,
		Listeners:            listeners,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildSource(cfg config.CaptureConfig, logger *slog.Logger) (media.Source, error) {
	switch cfg.Source {
	case config.SourceSynthetic:
		logger.Info("using synthetic frames; screenshots will not show the screen")
		return media.NewSyntheticSource(media.SyntheticOptions{}), nil
	case config.SourceDisplay, config.SourceAuto, "":
		// A display that cannot be captured stays selected so the controller
		// disables start and reports why. Synthetic frames are opt-in only.
		display := newDisplaySource(media.DisplayOptions{DisplayIndex: cfg.DisplayIndex})
		if p, ok := display.(interface{ Probe() error }); ok {
			if err := p.Probe(); err != nil {
				logger.Warn("display cannot be captured", logging.KeyError, err)
			}
		}
		return display, nil
	}
	return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
}

func capabilitiesFor(cfg config.CaptureConfig, source media.Source) screenshots.Capabilities {
	caps := detectCapabilities()
	switch kind := screenshots.Kind(strings.ToLower(cfg.Strategy)); kind {
	case screenshots.KindBitmap, screenshots.KindCanvas:
		caps.PreferredStrategy = kind
	}
	if source.Name() == "synthetic" {
		caps.Available = true
		caps.Provider = "synthetic"
	}
	return caps
}

// run drives the loop and the download queue while front runs. When front
// returns the session is stopped, pending downloads are flushed, and the
// loop exits.
func (s *session) run(ctx context.Context, front func(context.Context) error) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.loop.Run(loopCtx); err != nil && loopCtx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.sink.Run(context.Background())
	})
	g.Go(func() error {
		defer stopLoop()
		defer s.sink.Close()
		defer s.stop()
		return front(gctx)
	})
	return g.Wait()
}

func (s *session) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.controller.Stop(ctx); err != nil && !errors.Is(err, loop.ErrClosed) {
		s.logger.Warn("stop capture session", logging.KeyError, err)
	}
}
