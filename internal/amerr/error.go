// Package amerr provides error types shared by the automerger packages.
package amerr

import (
	"fmt"
	"time"
)

type RetryableError struct {
	// Err is the wrapped original error
	Err error
	// After is the earliest point in time that the operation can be retried
	After time.Time
}

func NewRetryableError(originalErr error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   originalErr,
		After: retryAfter,
	}
}

func NewRetryableAnytimeError(originalErr error) *RetryableError {
	return &RetryableError{
		Err: originalErr,
	}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (after %s): %s", e.After, e.Err)
}

// ContractViolationError is returned when a caller passes a value that breaks
// the contract of the receiving component, e.g. a task of an unsupported type.
// It is never retried.
type ContractViolationError struct {
	Reason string
}

func NewContractViolationError(format string, a ...any) *ContractViolationError {
	return &ContractViolationError{Reason: fmt.Sprintf(format, a...)}
}

func (e *ContractViolationError) Error() string {
	return "contract violation: " + e.Reason
}
