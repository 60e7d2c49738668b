package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// transformCustom splices the step's opaque payload in verbatim, bypassing
// all transformer logic. The payload is validated as JSON and never
// interpreted: it is the deliberate low-level escape hatch.
func transformCustom(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.CustomStep)

	payload, err := step.Payload()
	if err != nil {
		return nil, err
	}

	switch v := payload.(type) {
	case []any:
		stages := make([]Stage, 0, len(v))
		for _, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, NewInvalidStepError("custom", "payload list must contain stage documents")
			}
			stages = append(stages, Stage(doc))
		}
		return stages, nil

	case map[string]any:
		return []Stage{Stage(v)}, nil

	default:
		return nil, NewInvalidStepError("custom", "payload must be a stage document or a list of stage documents")
	}
}
