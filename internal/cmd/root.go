// Package cmd wires configuration, logging and a capture session behind the
// framegrab command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/framegrab/internal/buildinfo"
	"github.com/offlinefirst/framegrab/pkg/config"
	"github.com/offlinefirst/framegrab/pkg/logging"
)

// AppContext exposes lazily initialised configuration and logging facilities.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
}

type rootCommand struct {
	stdout     io.Writer
	stderr     io.Writer
	appCtx     *AppContext
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand constructs the CLI with its subcommands and global flags.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &rootCommand{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "framegrab",
		Short:         "Capture stills from a shared screen",
		Long:          "framegrab shares a display and captures still screenshots from it, immediately or after a countdown.",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&rc.configPath, "config", "", "Path to config file (default: ./config.yaml if present)")
	flags.StringVar(&rc.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.StringVar(&rc.logFormat, "log-format", "", "Override log output format (json, console)")

	root.AddCommand(
		newShootCommand(rc),
		newTUICommand(rc),
		newServeCommand(rc),
		newDoctorCommand(rc),
		newConfigCommand(rc),
		newVersionCommand(rc),
	)
	return root
}

// ensureAppContext loads configuration once. Logs go to logOutput, or to
// stderr when it is nil.
func (rc *rootCommand) ensureAppContext(logOutput io.Writer) (*AppContext, error) {
	if rc.appCtx != nil {
		return rc.appCtx, nil
	}

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}

	if rc.logLevel != "" {
		lvl, err := config.NormalizeLogLevel(rc.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = lvl
	}
	if rc.logFormat != "" {
		format, err := config.NormalizeFormat(rc.logFormat)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Format = format
	}

	if logOutput == nil {
		logOutput = rc.stderr
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded", "source", cfg.Source, "capture_source", cfg.Capture.Source, "download_dir", cfg.Output.DownloadDir)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger}
	return rc.appCtx, nil
}

func versionString() string {
	v := buildinfo.Version()
	if commit := buildinfo.Commit(); commit != "" {
		v += " " + commit
	}
	return fmt.Sprintf("%s (%s/%s)", v, runtimeVersion(), runtimeGOOS())
}

// runtimeVersion is extracted for testability.
var runtimeVersion = func() string { return runtime.Version() }

// runtimeGOOS is extracted for testability.
var runtimeGOOS = func() string { return runtime.GOOS }
