package mongo

import (
	"fmt"
)

// UnsupportedStepError reports a step kind the active backend has no
// transformer for. The UI layer recovers by disabling that operation.
type UnsupportedStepError struct {
	Step    string
	Backend string
}

func NewUnsupportedStepError(step, backend string) *UnsupportedStepError {
	return &UnsupportedStepError{Step: step, Backend: backend}
}

func (e *UnsupportedStepError) Error() string {
	return fmt.Sprintf("step %q is not supported by backend %q", e.Step, e.Backend)
}

// UnsupportedOperatorError reports a formula or filter operator with no
// aggregation-algebra equivalent. Fatal for the translation call.
type UnsupportedOperatorError struct {
	Operator string
}

func NewUnsupportedOperatorError(operator string) *UnsupportedOperatorError {
	return &UnsupportedOperatorError{Operator: operator}
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q", e.Operator)
}

// RecursionLimitError reports a join/append sub-pipeline nesting deeper
// than the translator's limit, which would otherwise recurse without bound
// on a self-referencing pipeline.
type RecursionLimitError struct {
	Limit int
}

func NewRecursionLimitError(limit int) *RecursionLimitError {
	return &RecursionLimitError{Limit: limit}
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("sub-pipeline nesting exceeds the recursion limit (%d)", e.Limit)
}

type ErrTransform = error

func NewTransformError(step string, err error) ErrTransform {
	return fmt.Errorf("failed to transform %s step: %w", step, err)
}

type ErrInvalidStep = error

func NewInvalidStepError(step, message string) ErrInvalidStep {
	return fmt.Errorf("invalid %s step: %s", step, message)
}
