package steps

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
)

// ValidationError is a data-level validation failure attached to a step of
// a pipeline. It is reported as a value, not raised, so a caller can map it
// back onto the offending step.
type ValidationError struct {
	// Path locates the offending field, e.g. "steps[3].query".
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error at %s: %s", e.Path, e.Message)
}

// Validate checks the data-level constraints of the pipeline: every custom
// step must carry a valid JSON payload, including custom steps of embedded
// join/append sub-pipelines. The returned slice is empty for a valid
// pipeline.
func (p Pipeline) Validate() []ValidationError {
	return p.validate("steps")
}

func (p Pipeline) validate(prefix string) []ValidationError {
	errs := []ValidationError{}

	for i, step := range p {
		path := fmt.Sprintf("%s[%d]", prefix, i)

		switch s := step.(type) {
		case *CustomStep:
			if err := s.Validate(); err != nil {
				errs = append(errs, ValidationError{
					Path:    path + ".query",
					Message: err.Error(),
				})
			}

		case *JoinStep:
			errs = append(errs, s.RightPipeline.validate(path+".rightPipeline.steps")...)

		case *AppendStep:
			for j, sub := range s.Pipelines {
				errs = append(errs,
					sub.validate(fmt.Sprintf("%s.pipelines[%d].steps", path, j))...)
			}
		}
	}

	return errs
}

// Validate checks that the opaque payload is valid JSON. The payload is
// never interpreted beyond that.
func (s *CustomStep) Validate() error {
	if s.Query == "" {
		return fmt.Errorf("custom step payload is empty")
	}
	if _, err := oj.ParseString(s.Query); err != nil {
		return fmt.Errorf("custom step payload is not valid JSON: %w", err)
	}
	return nil
}

// Payload parses the opaque JSON payload. The result is either a single
// stage document or a list of stage documents, as provided by the user.
func (s *CustomStep) Payload() (any, error) {
	v, err := oj.ParseString(s.Query)
	if err != nil {
		return nil, fmt.Errorf("custom step payload is not valid JSON: %w", err)
	}
	return v, nil
}
