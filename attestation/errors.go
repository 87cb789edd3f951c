package attestation

import "errors"

var (
	// Validation errors
	ErrInvalidEventRef     = errors.New("attestation: event reference is empty")
	ErrInvalidHolder       = errors.New("attestation: holder is the zero address")
	ErrArrayLengthMismatch = errors.New("attestation: batch arrays differ in length")

	// Authorization errors
	ErrUnauthorized = errors.New("attestation: caller not authorized")

	// Resource errors
	ErrNotFound = errors.New("attestation: attestation not found")
)
