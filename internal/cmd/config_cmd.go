package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(rc *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rc.ensureAppContext(nil)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(app.Config.Settings())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprintf(rc.stdout, "# source: %s\n", app.Config.Source)
			_, err = rc.stdout.Write(data)
			return err
		},
	}
}
