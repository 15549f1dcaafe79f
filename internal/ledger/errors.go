package ledger

import "errors"

// Error taxonomy for ledger and service operations. Validation errors are
// always returned before any reservation or submission side effect.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrTokenNotFound     = errors.New("token not found")
	ErrTokenNotActive    = errors.New("token is not active")
	ErrNotYetMatured     = errors.New("token has not yet matured")
	ErrAlreadyMatured    = errors.New("token has already matured")

	// ErrSubmissionFailed marks a transient settlement-layer failure.
	// Any reservation taken for the attempt has been rolled back,
	// so the whole operation is safe to retry.
	ErrSubmissionFailed = errors.New("settlement submission failed")
)
