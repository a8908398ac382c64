package repo

import "errors"

var (
	// ErrClientNotFound indicates no client row matched the lookup.
	ErrClientNotFound = errors.New("client not found")

	// ErrAlreadySettled indicates a concurrent writer won the pending ->
	// paid transition first; the caller should treat its own attempt as a
	// no-op rather than overwrite.
	ErrAlreadySettled = errors.New("client payment already settled")

	// ErrDuplicateTransaction indicates a payment with the same provider
	// transaction id was already recorded.
	ErrDuplicateTransaction = errors.New("duplicate payment transaction")
)
