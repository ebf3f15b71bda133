package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrCompanyCodeMissing occurs when a request carries no tenant header.
	ErrCompanyCodeMissing = errors.New("company code missing")
)
