// internal/common/errors/errors.go
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

type ErrorCode string

const (
	// Configuration
	ErrCodeConfigInvalid        ErrorCode = "CONFIG_INVALID"
	ErrCodeChannelNotConfigured ErrorCode = "CHANNEL_NOT_CONFIGURED"
	ErrCodeProviderAuthFailed   ErrorCode = "PROVIDER_AUTH_FAILED"

	// Validation
	ErrCodeInvalidAddress        ErrorCode = "INVALID_ADDRESS"
	ErrCodeTemplateNotFound      ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInactive      ErrorCode = "TEMPLATE_INACTIVE"
	ErrCodeUnresolvedPlaceholder ErrorCode = "UNRESOLVED_PLACEHOLDER"
	ErrCodeProviderRejected      ErrorCode = "PROVIDER_REJECTED"
	ErrCodeBookingNotFound       ErrorCode = "BOOKING_NOT_FOUND"
	ErrCodeClaimExpired          ErrorCode = "CLAIM_EXPIRED"

	// Transient provider failures
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRateLimited ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrCodeDispatchTimeout     ErrorCode = "DISPATCH_TIMEOUT"

	// Store
	ErrCodeStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Category groups codes by how the worker reacts to them.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryValidation    Category = "validation"
	CategoryTransient     Category = "transient"
	CategoryStore         Category = "store"
	CategoryInternal      Category = "internal"
)

var codeCategories = map[ErrorCode]Category{
	ErrCodeConfigInvalid:         CategoryConfiguration,
	ErrCodeChannelNotConfigured:  CategoryConfiguration,
	ErrCodeProviderAuthFailed:    CategoryConfiguration,
	ErrCodeInvalidAddress:        CategoryValidation,
	ErrCodeTemplateNotFound:      CategoryValidation,
	ErrCodeTemplateInactive:      CategoryValidation,
	ErrCodeUnresolvedPlaceholder: CategoryValidation,
	ErrCodeProviderRejected:      CategoryValidation,
	ErrCodeBookingNotFound:       CategoryValidation,
	ErrCodeClaimExpired:          CategoryValidation,
	ErrCodeProviderUnavailable:   CategoryTransient,
	ErrCodeProviderRateLimited:   CategoryTransient,
	ErrCodeDispatchTimeout:       CategoryTransient,
	ErrCodeStoreUnavailable:      CategoryStore,
	ErrCodeQueryExecutionFailed:  CategoryStore,
	ErrCodeNotFound:              CategoryStore,
}

// CategoryOf returns the category for a code, CategoryInternal when unknown.
func CategoryOf(code ErrorCode) Category {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	return CategoryInternal
}

// ==========================
// 2. Standard Error
// ==========================

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any *StandardError carrying the same code, so the sentinels
// below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Category reports how the error should be treated by the worker.
func (e *StandardError) Category() Category {
	return CategoryOf(e.Code)
}

// Sentinels for errors.Is.
var (
	ErrInvalidAddress        = &StandardError{Code: ErrCodeInvalidAddress}
	ErrChannelNotConfigured  = &StandardError{Code: ErrCodeChannelNotConfigured}
	ErrProviderAuthFailed    = &StandardError{Code: ErrCodeProviderAuthFailed}
	ErrProviderRejected      = &StandardError{Code: ErrCodeProviderRejected}
	ErrProviderUnavailable   = &StandardError{Code: ErrCodeProviderUnavailable}
	ErrProviderRateLimited   = &StandardError{Code: ErrCodeProviderRateLimited}
	ErrDispatchTimeout       = &StandardError{Code: ErrCodeDispatchTimeout}
	ErrTemplateInactive      = &StandardError{Code: ErrCodeTemplateInactive}
	ErrTemplateNotFound      = &StandardError{Code: ErrCodeTemplateNotFound}
	ErrUnresolvedPlaceholder = &StandardError{Code: ErrCodeUnresolvedPlaceholder}
	ErrBookingNotFound       = &StandardError{Code: ErrCodeBookingNotFound}
	ErrStoreUnavailable      = &StandardError{Code: ErrCodeStoreUnavailable}
	ErrQueryExecutionFailed  = &StandardError{Code: ErrCodeQueryExecutionFailed}
	ErrNotFound              = &StandardError{Code: ErrCodeNotFound}
)

// ==========================
// 3. Constructors
// ==========================

func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewChannelNotConfiguredError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelNotConfigured,
		Message:   "Messaging channel is not configured",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProviderAuthFailedError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderAuthFailed,
		Message:   "Messaging provider rejected credentials",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, errString(err)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewInvalidAddressError(raw, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidAddress,
		Message:   "Recipient address cannot be normalized",
		Details:   fmt.Sprintf("address: %q, reason: %s", raw, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateInactiveError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateInactive,
		Message:   "Template is deactivated",
		Details:   fmt.Sprintf("template: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnresolvedPlaceholderError(name string, keys []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnresolvedPlaceholder,
		Message:   "Template references variables that were not supplied",
		Details:   fmt.Sprintf("template: %s, missing: %v", name, keys),
		Retryable: false,
		Metadata:  map[string]interface{}{"missing": keys},
		Timestamp: time.Now().UTC(),
	}
}

func NewBookingNotFoundError(bookingID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBookingNotFound,
		Message:   "Booking context not found",
		Details:   fmt.Sprintf("bookingId: %s", bookingID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewClaimExpiredError(claimedBy string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClaimExpired,
		Message:   "Claim lease expired before delivery was confirmed",
		Details:   fmt.Sprintf("claimedBy: %s", claimedBy),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProviderRejectedError(provider, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRejected,
		Message:   "Messaging provider rejected the message",
		Details:   fmt.Sprintf("provider: %s, %s", provider, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProviderUnavailableError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnavailable,
		Message:   "Messaging provider unavailable",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewProviderRateLimitedError(provider, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRateLimited,
		Message:   "Messaging provider rate limit exceeded",
		Details:   fmt.Sprintf("provider: %s, %s", provider, details),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewDispatchTimeoutError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchTimeout,
		Message:   "Dispatch call exceeded timeout",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Notification store unreachable",
		Details:   errString(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
