package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpipe/dpipe/internal/buildinfo"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(info buildinfo.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dpipe %s\n", info.String())
		},
	}
}
