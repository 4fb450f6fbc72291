package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when no rule has the requested id.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrInvalidRule is wrapped by every ValidationError.
	ErrInvalidRule = errors.New("invalid rule")
)

// ValidationError describes a rejected form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
