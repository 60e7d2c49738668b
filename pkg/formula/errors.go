package formula

import (
	"fmt"
)

// SyntaxError reports a malformed formula string, carrying the offending
// input.
type SyntaxError struct {
	Formula string
	Detail  string
}

func NewSyntaxError(formula, detail string) *SyntaxError {
	return &SyntaxError{Formula: formula, Detail: detail}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in formula %q: %s", e.Formula, e.Detail)
}
