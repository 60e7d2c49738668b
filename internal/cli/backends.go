package cli

import (
	"github.com/spf13/cobra"

	"github.com/dpipe/dpipe/pkg/registry"
)

// BackendInfo describes one registered backend in the backends listing.
type BackendInfo struct {
	Backend          string   `json:"backend"`
	UnsupportedSteps []string `json:"unsupportedSteps"`
}

// NewBackendsCommand creates the backends command.
func NewBackendsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends and their step coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := []BackendInfo{}
			for _, backend := range registry.Backends() {
				infos = append(infos, BackendInfo{
					Backend:          backend,
					UnsupportedSteps: registry.UnsupportedSteps(backend),
				})
			}
			return writeJSON(cmd.OutOrStdout(), infos, rootOpts.Pretty)
		},
	}
}
