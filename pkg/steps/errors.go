package steps

import (
	"fmt"
)

type ErrUnmarshal = error

func NewUnmarshalError(kind, content string) ErrUnmarshal {
	if len(content) > 256 {
		content = content[:256] + "..."
	}
	return fmt.Errorf("JSON parsing error in %s at %q", kind, content)
}

// UnknownStepError reports a step object whose "name" discriminator is not
// part of the vocabulary.
type UnknownStepError struct {
	Step string
}

func NewUnknownStepError(step string) *UnknownStepError {
	return &UnknownStepError{Step: step}
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step kind %q", e.Step)
}
