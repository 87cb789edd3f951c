package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidRecipient  = errors.New("ledger: invalid recipient")
)
