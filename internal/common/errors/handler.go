// internal/common/errors/handler.go
package errors

import (
	"context"
	stderrors "errors"
	"time"
)

// Normalize ensures we always have a StandardError. Context deadline errors
// become DISPATCH_TIMEOUT so a hung provider call is reported as such.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewDispatchTimeoutError("unknown", err)
	}

	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// FailureReason is the text recorded in last_error for a failed job.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	return Normalize(err).Error()
}

// CodeOf returns the code of a normalized error, empty for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// IsRetryable reports whether an operator re-run could plausibly succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Normalize(err).Retryable
}
