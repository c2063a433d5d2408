package ledger

import "errors"

var (
	// ErrEntryNotFound is returned when no ledger entry has the given id or key.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidClaim is returned when a claim request is missing a key part
	// or payload hash.
	ErrInvalidClaim = errors.New("invalid claim request")
)
