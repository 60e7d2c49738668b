// Package cli implements the dpipe command line interface.
package cli

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dpipe/dpipe/internal/buildinfo"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbosity int
	Pretty    bool

	logger logr.Logger
}

// Logger returns the logger configured from the global flags. Log output
// goes to stderr so it never corrupts JSON written to stdout.
func (o *RootOptions) Logger() logr.Logger {
	return o.logger
}

// NewRootCommand creates the root command for the dpipe CLI.
func NewRootCommand(info buildinfo.BuildInfo) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "dpipe",
		Short:         "dpipe - declarative pipeline compiler",
		Long:          "Compile declarative transformation pipelines into database query stage lists.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(opts.Verbosity)
		},
	}

	cmd.PersistentFlags().IntVarP(&opts.Verbosity, "verbose", "v", 0, "log verbosity level")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewReverseCommand(opts))
	cmd.AddCommand(NewVisualizeCommand(opts))
	cmd.AddCommand(NewBackendsCommand(opts))
	cmd.AddCommand(NewVersionCommand(info))

	return cmd
}

func newLogger(verbosity int) logr.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	config.OutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	logger, err := config.Build()
	if err != nil {
		os.Stderr.WriteString("failed to set up logger: " + err.Error() + "\n")
		return logr.Discard()
	}

	return zapr.NewLogger(logger)
}
