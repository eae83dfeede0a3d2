package config

import "fmt"

// LoadError reports a configuration file that could not be read or parsed.
type LoadError struct {
	File  string
	Cause error
}

// NewLoadError wraps a file-level load failure.
func NewLoadError(file string, cause error) *LoadError {
	return &LoadError{File: file, Cause: cause}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ValidationError reports a configuration value that is present but illegal.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
}
