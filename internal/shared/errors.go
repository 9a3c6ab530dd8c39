package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a rejected input payload.
	ErrValidation = errors.New("validation failed")
)
