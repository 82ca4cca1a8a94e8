package amerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryableErrorUnwrap(t *testing.T) {
	origErr := errors.New("rate limited")
	err := fmt.Errorf("fetching pull request failed: %w", NewRetryableError(origErr, time.Now()))

	var retryErr *RetryableError
	assert.ErrorAs(t, err, &retryErr)
	assert.ErrorIs(t, err, origErr)
}

func TestRetryableAnytimeErrorString(t *testing.T) {
	err := NewRetryableAnytimeError(errors.New("503"))
	assert.Equal(t, "retryable error: 503", err.Error())
}

func TestContractViolationIsNotRetryable(t *testing.T) {
	err := fmt.Errorf("handling task failed: %w", NewContractViolationError("unsupported task type %T", 1))

	var retryErr *RetryableError
	assert.False(t, errors.As(err, &retryErr))

	var cvErr *ContractViolationError
	assert.ErrorAs(t, err, &cvErr)
	assert.Equal(t, "unsupported task type int", cvErr.Reason)
}
