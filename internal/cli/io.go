package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/dpipe/dpipe/pkg/steps"
)

// readInput reads the named file, or stdin when the name is "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// loadPipeline reads and validates a pipeline from a YAML or JSON file.
func loadPipeline(name string) (steps.Pipeline, error) {
	content, err := readInput(name)
	if err != nil {
		return nil, err
	}

	pipeline := steps.Pipeline{}
	if err := yaml.Unmarshal(content, &pipeline); err != nil {
		return nil, fmt.Errorf("cannot parse pipeline %q: %w", name, err)
	}

	if errs := pipeline.Validate(); len(errs) > 0 {
		for _, e := range errs[1:] {
			fmt.Fprintf(os.Stderr, "invalid pipeline: %s\n", e.Error())
		}
		return nil, fmt.Errorf("invalid pipeline %q: %s", name, errs[0].Error())
	}

	return pipeline, nil
}

// writeJSON writes a value as JSON to the writer, indented when pretty is
// set, always newline-terminated.
func writeJSON(w io.Writer, v any, pretty bool) error {
	var (
		content []byte
		err     error
	)
	if pretty {
		content, err = json.MarshalIndent(v, "", "  ")
	} else {
		content, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", content)
	return err
}
