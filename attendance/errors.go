package attendance

import "errors"

var (
	// Validation errors
	ErrInvalidRecipient = errors.New("attendance: recipient is the zero address")
	ErrEmptyMetadataURI = errors.New("attendance: metadata URI is empty")
	ErrInvalidEventRef  = errors.New("attendance: event reference is empty")

	// Authorization errors
	ErrUnauthorized        = errors.New("attendance: caller not authorized")
	ErrIssuerNotConfigured = errors.New("attendance: no issuer key configured")
	ErrInvalidProof        = errors.New("attendance: permit proof invalid")

	// State-conflict errors
	ErrDuplicateIssuance = errors.New("attendance: holder already has a live token for event")

	// Resource errors
	ErrNotFound = errors.New("attendance: token not found")

	// ErrTransferNotAllowed rejects every transfer and approval path;
	// attendance tokens are bound to their holder for life.
	ErrTransferNotAllowed = errors.New("attendance: transfer not allowed")
)
