package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeUnreachable        ErrorType = "unreachable"
	ErrorTypeServer             ErrorType = "server_error"
	ErrorTypeAmbiguousStatus    ErrorType = "ambiguous_status"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeStorageUnavailable ErrorType = "storage_unavailable"
	ErrorTypeAccessRestricted   ErrorType = "access_restricted"
)

// OrderError represents a structured error raised by the order core
type OrderError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *OrderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *OrderError) Unwrap() error {
	return e.Cause
}

// NewUnreachableError creates an error for network failures and timeouts
func NewUnreachableError(message string, cause error) *OrderError {
	return &OrderError{
		Type:    ErrorTypeUnreachable,
		Code:    ErrCodeUnreachable,
		Message: message,
		Cause:   cause,
	}
}

// NewServerError creates an error for 5xx responses from the remote store
func NewServerError(statusCode int, message string) *OrderError {
	return &OrderError{
		Type:    ErrorTypeServer,
		Code:    ErrCodeServerError,
		Message: message,
		Details: map[string]interface{}{"status_code": statusCode},
	}
}

// NewAmbiguousStatusError creates an error for responses that carry no
// usable status or payload
func NewAmbiguousStatusError(statusCode int, message string) *OrderError {
	return &OrderError{
		Type:    ErrorTypeAmbiguousStatus,
		Code:    ErrCodeAmbiguousStatus,
		Message: message,
		Details: map[string]interface{}{"status_code": statusCode},
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *OrderError {
	return &OrderError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *OrderError {
	return &OrderError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewStorageUnavailableError creates an error for local medium failures
func NewStorageUnavailableError(message string, cause error) *OrderError {
	return &OrderError{
		Type:    ErrorTypeStorageUnavailable,
		Code:    ErrCodeStorageUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// NewAccessRestrictedError creates an error for the location-restricted
// admin listing
func NewAccessRestrictedError(message string) *OrderError {
	return &OrderError{
		Type:    ErrorTypeAccessRestricted,
		Code:    ErrCodeLocationRestricted,
		Message: message,
	}
}

// IsType reports whether any error in err's chain is an OrderError of type t
func IsType(err error, t ErrorType) bool {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Type == t
	}
	return false
}

// Common error codes
const (
	ErrCodeUnreachable        = "REMOTE_UNREACHABLE"
	ErrCodeServerError        = "REMOTE_SERVER_ERROR"
	ErrCodeAmbiguousStatus    = "REMOTE_AMBIGUOUS_STATUS"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeEmptyCart          = "EMPTY_CART"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeLocationRestricted = "LOCATION_RESTRICTED"
	ErrCodeSubmissionFailed   = "SUBMISSION_FAILED"
)
