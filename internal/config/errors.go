package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports every problem found while validating a
// configuration. It is raised before any controller task starts and prevents
// the controller from ever running.
type ConfigurationError struct {
	Problems []string `json:"problems"`
}

// Error implements the error interface. Problems are joined one per line.
func (ce *ConfigurationError) Error() string {
	if len(ce.Problems) == 0 {
		return "invalid configuration"
	}
	return strings.Join(ce.Problems, "\n")
}

// NewConfigurationError creates a ConfigurationError with a single problem.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// IsConfigurationError checks if an error is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ErrorCollection accumulates configuration problems so callers can report
// all of them at once instead of stopping at the first.
type ErrorCollection struct {
	problems []string
}

// Addf records a formatted problem.
func (ec *ErrorCollection) Addf(format string, args ...interface{}) {
	ec.problems = append(ec.problems, fmt.Sprintf(format, args...))
}

// AddError records err. A nested ConfigurationError contributes each of its
// problems individually.
func (ec *ErrorCollection) AddError(err error) {
	if err == nil {
		return
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		ec.problems = append(ec.problems, ce.Problems...)
		return
	}
	ec.problems = append(ec.problems, err.Error())
}

// HasErrors returns true if any problem was recorded
func (ec *ErrorCollection) HasErrors() bool {
	return len(ec.problems) > 0
}

// Count returns the number of recorded problems
func (ec *ErrorCollection) Count() int {
	return len(ec.problems)
}

// Err returns nil when no problem was recorded, otherwise a
// *ConfigurationError holding a copy of the problems.
func (ec *ErrorCollection) Err() error {
	if len(ec.problems) == 0 {
		return nil
	}
	problems := make([]string, len(ec.problems))
	copy(problems, ec.problems)
	return &ConfigurationError{Problems: problems}
}
