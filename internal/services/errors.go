package services

import (
	"errors"

	"fairdice-backend/internal/fairness"
)

var (
	// caller errors, not retried
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidStake = errors.New("invalid stake")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidSeed  = fairness.ErrInvalidSeed

	// lifecycle errors: re-fetch state before trying again
	ErrInvalidState          = errors.New("invalid seed pair state")
	ErrInsufficientPairState = errors.New("seed pair is not active")

	// races on shared pair state: the whole call can be retried
	ErrNonceReuse          = errors.New("nonce already consumed")
	ErrConcurrencyConflict = errors.New("concurrent update of seed pair")

	// store unavailable, transient. A write may or may not have landed.
	ErrPersistence = errors.New("persistence failure")
)

// IsRetryable reports whether the failed call left no trace and may be
// repeated as is. Persistence failures are excluded: the store may have
// committed before the reply was lost.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrNonceReuse)
}
