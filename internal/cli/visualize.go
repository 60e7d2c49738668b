package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpipe/dpipe/pkg/visualize"
)

// VisualizeOptions holds flags for the visualize command.
type VisualizeOptions struct {
	*RootOptions
	File   string
	Format string // "dot" | "mermaid"
	Title  string
}

// DiagramGenerator renders a visualization graph in one output format.
type DiagramGenerator interface {
	Generate(g *visualize.Graph) string
}

// NewVisualizeCommand creates the visualize command.
func NewVisualizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VisualizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Render a pipeline as a diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisualize(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "pipeline file, - for stdin")
	cmd.Flags().StringVar(&opts.Format, "format", "dot", "diagram format (dot|mermaid)")
	cmd.Flags().StringVar(&opts.Title, "title", "pipeline", "diagram title")

	return cmd
}

func runVisualize(opts *VisualizeOptions, cmd *cobra.Command) error {
	pipeline, err := loadPipeline(opts.File)
	if err != nil {
		return err
	}

	var generator DiagramGenerator
	switch opts.Format {
	case "dot":
		generator = &visualize.DotGenerator{}
	case "mermaid":
		generator = &visualize.MermaidGenerator{}
	default:
		return fmt.Errorf("unknown diagram format %q: must be dot or mermaid", opts.Format)
	}

	graph := visualize.BuildGraph(opts.Title, pipeline)
	fmt.Fprint(cmd.OutOrStdout(), generator.Generate(graph))

	return nil
}
