package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/dpipe/dpipe/pkg/mongo"
)

// ReverseOptions holds flags for the reverse command.
type ReverseOptions struct {
	*RootOptions
	File string
}

// NewReverseCommand creates the reverse command.
func NewReverseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReverseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Reconstruct a pipeline from a stage list",
		Long: `Reconstruct a best-effort pipeline from an aggregation stage list.

Stages with a step-level equivalent map back to that step; every other
stage comes back as an opaque custom step wrapping the stage verbatim.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReverse(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "stage list file, - for stdin")

	return cmd
}

func runReverse(opts *ReverseOptions, cmd *cobra.Command) error {
	content, err := readInput(opts.File)
	if err != nil {
		return err
	}

	stages := []mongo.Stage{}
	if err := yaml.Unmarshal(content, &stages); err != nil {
		return fmt.Errorf("cannot parse stage list %q: %w", opts.File, err)
	}

	pipeline := mongo.ReverseTranslate(stages)
	opts.Logger().V(1).Info("stage list reversed", "stages", len(stages), "steps", len(pipeline))

	return writeJSON(cmd.OutOrStdout(), pipeline, opts.Pretty)
}
