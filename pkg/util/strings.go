// Package util holds small helpers shared across the translation packages.
package util

import (
	"encoding/json"
	"fmt"
)

// Map applies a function to every element of a slice.
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders a value as compact JSON, falling back to the Go
// representation for unmarshalable values.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
