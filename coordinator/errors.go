package coordinator

import "errors"

var (
	// Validation errors
	ErrEmptyName       = errors.New("coordinator: event name is empty")
	ErrEmptyImageRef   = errors.New("coordinator: event image reference is empty")
	ErrInvalidCreator  = errors.New("coordinator: creator is the zero address")
	ErrInvalidOperator = errors.New("coordinator: operator is the zero address")
	ErrNotConfigured   = errors.New("coordinator: attendance and collectible registries are required")

	// Authorization errors
	ErrNotCreator   = errors.New("coordinator: caller is not the event creator")
	ErrUnauthorized = errors.New("coordinator: caller not authorized")

	// State-conflict errors
	ErrEventNotActive = errors.New("coordinator: event is not active")
	ErrEventFull      = errors.New("coordinator: event is at capacity")

	// Resource errors
	ErrNotRegistered = errors.New("coordinator: event not registered")
)
