package unlock

import "errors"

var (
	// ErrInvalidState indicates the operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrPinMismatch indicates the PIN and its confirmation differ.
	ErrPinMismatch = errors.New("PINs don't match")
	// ErrSessionClosed indicates the released session has been wiped.
	ErrSessionClosed = errors.New("session closed")
)
