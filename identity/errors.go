package identity

import "errors"

var (
	ErrInvalidAddress = errors.New("identity: invalid address encoding")
	ErrInvalidKey     = errors.New("identity: invalid key encoding")
)
