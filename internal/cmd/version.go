package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(rc *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(rc.stdout, versionString())
			return err
		},
	}
}
