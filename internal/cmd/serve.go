package cmd

import (
	"context"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/framegrab/internal/server"
	"github.com/offlinefirst/framegrab/pkg/capture"
)

func newServeCommand(rc *rootCommand) *cobra.Command {
	var (
		host    string
		port    int
		source  string
		display int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the capture session over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rc.ensureAppContext(nil)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				app.Config.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				app.Config.Server.Port = port
			}
			applySourceFlags(cmd, app, source, display)
			return runServe(cmd.Context(), app)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "Interface to bind (default from config)")
	flags.IntVar(&port, "port", 0, "Port to bind (default from config)")
	flags.StringVar(&source, "source", "", "Capture source override (auto, display, synthetic)")
	flags.IntVar(&display, "display", 0, "Display index to share")
	return cmd
}

func runServe(ctx context.Context, app *AppContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := newSession(app, sessionOptions{ExternalSink: true})
	if err != nil {
		return err
	}
	srv := server.New(server.Options{
		Controller:     s.controller,
		Blobs:          s.sink,
		Logger:         app.Logger,
		AllowedOrigins: app.Config.Server.AllowedOrigins,
		Request:        capture.Request{},
	})
	s.onSaved = srv.OnSaved

	addr := net.JoinHostPort(app.Config.Server.Host, strconv.Itoa(app.Config.Server.Port))
	return s.run(ctx, func(ctx context.Context) error {
		if err := s.controller.Subscribe(ctx, srv.Listener()); err != nil {
			return err
		}
		return srv.Serve(ctx, addr)
	})
}
