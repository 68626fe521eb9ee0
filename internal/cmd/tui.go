package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/offlinefirst/framegrab/internal/tui"
	"github.com/offlinefirst/framegrab/pkg/capture"
)

func newTUICommand(rc *rootCommand) *cobra.Command {
	var (
		logFile string
		delay   float64
		source  string
		display int
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the interactive terminal capture panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var logOutput io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logOutput = f
			}
			app, err := rc.ensureAppContext(logOutput)
			if err != nil {
				return err
			}
			initial, err := capture.DelayFromSeconds(delay)
			if err != nil {
				return err
			}
			applySourceFlags(cmd, app, source, display)
			return runTUI(cmd.Context(), app, initial)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file (logs are discarded otherwise)")
	flags.Float64Var(&delay, "delay", 0, "Initial screenshot delay in seconds")
	flags.StringVar(&source, "source", "", "Capture source override (auto, display, synthetic)")
	flags.IntVar(&display, "display", 0, "Display index to share")
	return cmd
}

func runTUI(ctx context.Context, app *AppContext, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := newSession(app, sessionOptions{})
	if err != nil {
		return err
	}

	model := tui.New(ctx, s.controller, tui.Options{
		Delay:     delay,
		DelayStep: app.Config.Capture.DelayStep,
		Request:   capture.Request{},
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	s.onSaved = tui.SavedListener(program.Send)

	return s.run(ctx, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			_, err := program.Run()
			done <- err
		}()
		// Subscribe after the program is running: the replay is delivered
		// through program.Send.
		if err := s.controller.Subscribe(ctx, tui.Listener(program.Send)); err != nil {
			program.Quit()
			<-done
			return err
		}
		err := <-done
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
}
