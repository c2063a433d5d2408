package reconcile

import (
	"errors"
	"fmt"
)

// ContractError reports input that violates the reconciler's contract.
type ContractError struct {
	Code    ContractErrorCode
	Message string
	// Index is the offending position in the input slice, -1 if not
	// applicable.
	Index int
}

// ContractErrorCode categorizes contract errors.
type ContractErrorCode string

const (
	// ErrCodeDuplicateHolding indicates two existing holdings share a
	// (symbol, category) key.
	ErrCodeDuplicateHolding ContractErrorCode = "DUPLICATE_HOLDING"
)

func (e *ContractError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s (index=%d)", e.Code, e.Message, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError reports whether err wraps a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
