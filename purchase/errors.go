package purchase

import (
	"errors"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountBanned also covers inactive accounts; the wrapped message says which.
	ErrAccountBanned          = errors.New("account banned")
	ErrCaseUnavailable        = cases.ErrCaseUnavailable
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	// ErrIdempotencyKeyConflict is returned when a key already completed for
	// a different account.
	ErrIdempotencyKeyConflict = errors.New("idempotency key used by another account")
)

// IsRejection reports whether err is a business rule refusing the purchase
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountBanned) ||
		errors.Is(err, ErrCaseUnavailable) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrIdempotencyKeyRequired) ||
		errors.Is(err, ErrIdempotencyKeyConflict)
}
