package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/framegrab/pkg/media"
	"github.com/offlinefirst/framegrab/pkg/screenshots"
)

// Overridable in tests.
var listDisplays = media.ListDisplays

func newDoctorCommand(rc *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report screen capture support on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rc.ensureAppContext(nil)
			if err != nil {
				return err
			}
			return runDoctor(app, rc.stdout)
		},
	}
}

func runDoctor(app *AppContext, stdout io.Writer) error {
	caps := detectCapabilities()

	fmt.Fprintf(stdout, "Config:      %s\n", app.Config.Source)
	fmt.Fprintf(stdout, "Provider:    %s\n", caps.Provider)
	fmt.Fprintf(stdout, "Permission:  %s\n", caps.Permission)
	fmt.Fprintf(stdout, "Strategy:    %s\n", caps.PreferredStrategy)
	fmt.Fprintf(stdout, "Source pick: %t\n", caps.SourcePreferenceSupported)
	fmt.Fprintf(stdout, "Status:      %s\n", caps.Message)
	if caps.Guidance != "" {
		fmt.Fprintf(stdout, "Guidance:    %s\n", caps.Guidance)
	}

	var displays []media.Display
	if caps.Available && caps.Provider != string(screenshots.DisplayUnknown) && caps.Provider != string(screenshots.DisplayWayland) {
		displays = listDisplays()
	}
	fmt.Fprintf(stdout, "Displays:    %d\n", len(displays))
	for _, d := range displays {
		fmt.Fprintf(stdout, "  [%d] %dx%d at %d,%d\n", d.Index, d.Bounds.Dx(), d.Bounds.Dy(), d.Bounds.Min.X, d.Bounds.Min.Y)
	}

	if !caps.Available {
		return fmt.Errorf("screen capture unavailable: %s", caps.Message)
	}
	return nil
}
