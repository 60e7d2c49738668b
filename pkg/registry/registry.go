// Package registry maps backend identifiers to pipeline translators and
// answers capability queries across them. The registry is process-wide: it
// is written once at startup via Register calls (typically from package
// init) and read-only afterwards, so concurrent reads are safe but it is
// not designed for concurrent mutation.
package registry

import (
	"sort"

	"github.com/dpipe/dpipe/pkg/steps"
)

// Translator is a pipeline-to-stages compiler for one backend.
type Translator interface {
	// Backend returns the backend identifier the translator serves.
	Backend() string
	// Translate lowers a pipeline to an ordered stage-document list.
	Translate(pipeline steps.Pipeline) ([]map[string]any, error)
	// Supports reports whether a step kind has a transformer.
	Supports(step string) bool
	// UnsupportedSteps lists the step kinds without a transformer.
	UnsupportedSteps() []string
}

var translators = map[string]Translator{}

// Register installs a translator under its backend identifier, replacing a
// previous registration for the same backend.
func Register(t Translator) {
	translators[t.Backend()] = t
}

// Lookup returns the translator registered for a backend.
func Lookup(backend string) (Translator, bool) {
	t, ok := translators[backend]
	return t, ok
}

// Backends lists the registered backend identifiers, sorted.
func Backends() []string {
	backends := make([]string, 0, len(translators))
	for b := range translators {
		backends = append(backends, b)
	}
	sort.Strings(backends)
	return backends
}

// SupportingBackends lists the backends whose translator supports a step
// kind, sorted. The UI uses this to gray out unsupported operations.
func SupportingBackends(step string) []string {
	backends := []string{}
	for b, t := range translators {
		if t.Supports(step) {
			backends = append(backends, b)
		}
	}
	sort.Strings(backends)
	return backends
}

// UnsupportedSteps lists the step kinds a backend has no transformer for.
func UnsupportedSteps(backend string) []string {
	t, ok := translators[backend]
	if !ok {
		return steps.StepNames()
	}
	return t.UnsupportedSteps()
}
