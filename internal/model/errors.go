package model

import "errors"

// Error taxonomy shared by every component. Callers wrap these with
// fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrExternalService    = errors.New("external service failure")

	// ErrInvalidArgument rejects malformed input before any state is read.
	ErrInvalidArgument = errors.New("invalid argument")
)
