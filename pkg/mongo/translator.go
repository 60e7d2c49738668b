package mongo

import (
	"sort"

	"github.com/go-logr/logr"

	"github.com/dpipe/dpipe/pkg/registry"
	"github.com/dpipe/dpipe/pkg/steps"
)

// DomainResolver maps a logical domain name to the physical source
// identifier the backend reads from.
type DomainResolver func(domain string) string

// transformFunc lowers one step to a list of stages. Transformers are pure:
// the translator is passed in only for the domain resolver, the logger and
// sub-pipeline recursion.
type transformFunc func(tr *Translator, depth int, step steps.Step) ([]Stage, error)

// Backend identifiers accepted by the registry.
const (
	Backend40 = "mongo40"
	Backend36 = "mongo36"
)

// defaultMaxDepth bounds join/append sub-pipeline nesting. A pipeline
// referencing itself through a sub-pipeline would otherwise recurse without
// bound.
const defaultMaxDepth = 16

// Translator lowers pipelines to aggregation stage lists for one backend.
// Translation is deterministic and pure: the same pipeline and domain
// resolver always produce a deep-equal stage list.
type Translator struct {
	backend      string
	transformers map[string]transformFunc
	resolve      DomainResolver
	log          logr.Logger
	maxDepth     int
}

// Option configures a translator.
type Option func(*Translator)

// WithDomainResolver installs the domain-name to physical-source resolver.
// The default resolver is the identity.
func WithDomainResolver(resolve DomainResolver) Option {
	return func(t *Translator) { t.resolve = resolve }
}

// WithLogger installs a logger. The default discards everything.
func WithLogger(log logr.Logger) Option {
	return func(t *Translator) { t.log = log }
}

// WithMaxDepth overrides the join/append recursion limit.
func WithMaxDepth(depth int) Option {
	return func(t *Translator) { t.maxDepth = depth }
}

// NewTranslator creates a translator for the most recent supported backend
// (mongo40), with a transformer for every step of the vocabulary.
func NewTranslator(opts ...Option) *Translator {
	return newTranslator(Backend40, transformerTable(), opts...)
}

// NewTranslator36 creates a translator for the mongo36 backend. It lacks
// the convert and todate steps, both of which lower to $convert-family
// operators this backend does not have.
func NewTranslator36(opts ...Option) *Translator {
	table := transformerTable()
	delete(table, "convert")
	delete(table, "todate")
	return newTranslator(Backend36, table, opts...)
}

func newTranslator(backend string, table map[string]transformFunc, opts ...Option) *Translator {
	t := &Translator{
		backend:      backend,
		transformers: table,
		resolve:      func(domain string) string { return domain },
		log:          logr.Discard(),
		maxDepth:     defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Backend returns the backend identifier the translator serves.
func (t *Translator) Backend() string { return t.backend }

// Supports reports whether the backend has a transformer for a step kind.
func (t *Translator) Supports(step string) bool {
	_, ok := t.transformers[step]
	return ok
}

// UnsupportedSteps lists the step kinds of the vocabulary this backend has
// no transformer for, sorted.
func (t *Translator) UnsupportedSteps() []string {
	unsupported := []string{}
	for _, name := range steps.StepNames() {
		if !t.Supports(name) {
			unsupported = append(unsupported, name)
		}
	}
	sort.Strings(unsupported)
	return unsupported
}

// Translate lowers a pipeline to an aggregation stage list, appends the
// final projection stripping internal identifiers and simplifies the
// result.
func (t *Translator) Translate(pipeline steps.Pipeline) ([]Stage, error) {
	return t.translate(pipeline, 0)
}

func (t *Translator) translate(pipeline steps.Pipeline, depth int) ([]Stage, error) {
	if depth > t.maxDepth {
		return nil, NewRecursionLimitError(t.maxDepth)
	}

	stages := []Stage{}
	for _, step := range pipeline {
		fn, ok := t.transformers[step.Name()]
		if !ok {
			return nil, NewUnsupportedStepError(step.Name(), t.backend)
		}

		out, err := fn(t, depth, step)
		if err != nil {
			return nil, NewTransformError(step.Name(), err)
		}

		t.log.V(2).Info("step lowered", "step", step.Name(), "stages", len(out))

		stages = append(stages, out...)
	}

	stages = append(stages, finalProjection())
	stages = Simplify(stages)

	t.log.V(1).Info("translation ready", "steps", len(pipeline), "stages", len(stages))

	return stages, nil
}

func init() {
	registry.Register(NewTranslator())
	registry.Register(NewTranslator36())
}
