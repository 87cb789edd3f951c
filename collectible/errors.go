package collectible

import "errors"

var (
	// Validation errors
	ErrInvalidOrganizer = errors.New("collectible: organizer is the zero address")
	ErrInvalidRecipient = errors.New("collectible: recipient is the zero address")
	ErrInvalidTreasury  = errors.New("collectible: treasury is the zero address")
	ErrInvalidAccount   = errors.New("collectible: escrow account is the zero address")
	ErrInvalidSplit     = errors.New("collectible: fee split must be positive and sum to 10000")
	ErrInsufficientFee  = errors.New("collectible: payment below configured fee")

	// Authorization errors
	ErrUnauthorized = errors.New("collectible: caller not authorized")
	ErrNotOwner     = errors.New("collectible: caller does not own the token")

	// State-conflict errors
	ErrAlreadyPaired = errors.New("collectible: attendance token already paired")
	ErrPaused        = errors.New("collectible: registry is paused")

	// Resource errors
	ErrNotFound          = errors.New("collectible: token not found")
	ErrNothingToWithdraw = errors.New("collectible: nothing to withdraw")

	// ErrTransferFailed marks an external payout that did not complete.
	// The enclosing operation aborts entirely; no registry state survives.
	ErrTransferFailed = errors.New("collectible: payout transfer failed")
)
