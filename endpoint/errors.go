package endpoint

import "errors"

var (
	// ErrNotFound is returned for unknown endpoints and for endpoints the
	// caller is not allowed to see.
	ErrNotFound = errors.New("herald: endpoint not found")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("herald: validation failed")
)

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
