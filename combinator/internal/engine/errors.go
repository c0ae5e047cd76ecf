package engine

import (
	"errors"
	"fmt"
	"strings"
)

// MissingInput names an input whose rate could not be determined.
type MissingInput struct {
	Metric string // combined metric
	Input  string // input it depends on
}

// MissingInputError lists every combined-metric input without a known rate
// found during one resolution pass.
type MissingInputError struct {
	Missing []MissingInput
}

func (e *MissingInputError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprintf("%s (needed by %s)", m.Input, m.Metric)
	}
	return "engine: no rate for inputs: " + strings.Join(parts, ", ")
}

// CircularDependencyError is returned when rate resolution deferred more
// often than any acyclic configuration could require.
type CircularDependencyError struct {
	Metric string // metric being deferred when the budget ran out
	Budget int
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("engine: circular dependency involving %q (exceeded %d deferrals)",
		e.Metric, e.Budget)
}

// IsCircular reports whether err is or wraps a CircularDependencyError.
func IsCircular(err error) bool {
	var target *CircularDependencyError
	return errors.As(err, &target)
}

// IsMissingInput reports whether err is or wraps a MissingInputError.
func IsMissingInput(err error) bool {
	var target *MissingInputError
	return errors.As(err, &target)
}
