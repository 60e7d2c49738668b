package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dpipe/dpipe/pkg/mongo"
	"github.com/dpipe/dpipe/pkg/registry"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	File    string
	Backend string
	Domains []string // domain=collection overrides
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Compile a pipeline into a stage list",
		Long: `Compile a declarative pipeline into the stage list of a query backend.

The pipeline is read as YAML or JSON and the resulting stage list is
written to stdout as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "pipeline file, - for stdin")
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", mongo.Backend40, "target backend")
	cmd.Flags().StringArrayVar(&opts.Domains, "domain", nil,
		"map a domain to a collection, as domain=collection (repeatable)")

	return cmd
}

func runTranslate(opts *TranslateOptions, cmd *cobra.Command) error {
	log := opts.Logger()

	pipeline, err := loadPipeline(opts.File)
	if err != nil {
		return err
	}
	log.V(1).Info("pipeline loaded", "file", opts.File, "steps", len(pipeline))

	translator, err := newTranslator(opts)
	if err != nil {
		return err
	}

	stages, err := translator.Translate(pipeline)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}
	log.V(1).Info("pipeline translated", "backend", opts.Backend, "stages", len(stages))

	return writeJSON(cmd.OutOrStdout(), stages, opts.Pretty)
}

// newTranslator resolves the backend flag to a translator. Domain
// overrides force a dedicated instance since the registry ones resolve
// domains to themselves.
func newTranslator(opts *TranslateOptions) (registry.Translator, error) {
	if len(opts.Domains) > 0 {
		mapping, err := parseDomainMapping(opts.Domains)
		if err != nil {
			return nil, err
		}
		resolver := mongo.WithDomainResolver(func(domain string) string {
			if collection, ok := mapping[domain]; ok {
				return collection
			}
			return domain
		})

		switch opts.Backend {
		case mongo.Backend40:
			return mongo.NewTranslator(resolver, mongo.WithLogger(opts.Logger())), nil
		case mongo.Backend36:
			return mongo.NewTranslator36(resolver, mongo.WithLogger(opts.Logger())), nil
		}
	}

	translator, ok := registry.Lookup(opts.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q: available backends are %s",
			opts.Backend, strings.Join(registry.Backends(), ", "))
	}
	return translator, nil
}

func parseDomainMapping(args []string) (map[string]string, error) {
	mapping := map[string]string{}
	for _, arg := range args {
		domain, collection, ok := strings.Cut(arg, "=")
		if !ok || domain == "" || collection == "" {
			return nil, fmt.Errorf("invalid domain mapping %q: expected domain=collection", arg)
		}
		mapping[domain] = collection
	}
	return mapping, nil
}
