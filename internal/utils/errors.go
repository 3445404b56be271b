// Package utils provides shared helpers for the session storage engine.
package utils

import "fmt"

// StoreError represents a structured storage-engine error.
type StoreError struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// WrapError creates a contextual error.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{
		Context: context,
		Cause:   cause,
	}
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *StoreError) Unwrap() error {
	return e.Cause
}
