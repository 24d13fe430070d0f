package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Authentication & Authorization Errors
	ErrorCodeUnauthenticated       ErrorCode = "UNAUTHENTICATED"
	ErrorCodeStripeAccountRequired ErrorCode = "STRIPE_ACCOUNT_REQUIRED"

	// Fee Errors
	ErrorCodeInvalidAmount           ErrorCode = "INVALID_AMOUNT"
	ErrorCodeInvalidFeeConfiguration ErrorCode = "INVALID_FEE_CONFIGURATION"

	// Resource Errors
	ErrorCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrorCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Validation Errors
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_ERROR"

	// Processor Errors
	ErrorCodeProcessorError ErrorCode = "PROCESSOR_ERROR"

	// Internal Errors
	ErrorCodeStorageError  ErrorCode = "STORAGE_ERROR"
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorMessage returns the user-facing message of a DomainError, or err.Error() otherwise
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeNotFound
}

// IsAuthError checks if an error is authentication/authorization related
func IsAuthError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeUnauthenticated ||
		code == ErrorCodeStripeAccountRequired
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeInvalidAmount
}

// IsProcessorError checks if an error came from the payment processor
func IsProcessorError(err error) bool {
	return GetErrorCode(err) == ErrorCodeProcessorError
}

// IsStorageError checks if an error came from persistence
func IsStorageError(err error) bool {
	return GetErrorCode(err) == ErrorCodeStorageError
}

// Sentinel errors. Compare with errors.Is or the Is* helpers; wrap with WrapError to add context.
var (
	ErrUnauthenticated       = NewDomainError(ErrorCodeUnauthenticated, "authentication required")
	ErrStripeAccountRequired = NewDomainError(ErrorCodeStripeAccountRequired, "a Stripe account is required for this action")

	ErrInvalidAmount           = NewDomainError(ErrorCodeInvalidAmount, "amount must be a non-negative integer of minor units")
	ErrInvalidFeeConfiguration = NewDomainError(ErrorCodeInvalidFeeConfiguration, "combined fee percentage must be below 100")

	ErrNotFound            = NewDomainError(ErrorCodeNotFound, "resource not found")
	ErrLinkNotFound        = NewDomainError(ErrorCodeNotFound, "link not found")
	ErrTransactionNotFound = NewDomainError(ErrorCodeNotFound, "transaction not found")
	ErrAccountNotFound     = NewDomainError(ErrorCodeNotFound, "seller account not found")
	ErrSubscriberNotFound  = NewDomainError(ErrorCodeNotFound, "subscriber not found")
	ErrUserNotFound        = NewDomainError(ErrorCodeNotFound, "user not found")

	ErrAlreadyExists = NewDomainError(ErrorCodeAlreadyExists, "resource already exists")

	ErrValidationFailed = NewDomainError(ErrorCodeValidationFailed, "validation failed")

	ErrProcessor = NewDomainError(ErrorCodeProcessorError, "payment processor error")
	ErrStorage   = NewDomainError(ErrorCodeStorageError, "storage error")
	ErrInternal  = NewDomainError(ErrorCodeInternalError, "internal server error")
)

// NewValidationError is shorthand for a VALIDATION_ERROR with a specific message
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorCodeValidationFailed, message)
}

// NewStorageError wraps a persistence failure
func NewStorageError(op string, err error) *DomainError {
	return WrapError(ErrorCodeStorageError, op, err)
}

// NewProcessorError wraps a processor failure with a user-facing message
func NewProcessorError(message string, err error) *DomainError {
	return WrapError(ErrorCodeProcessorError, message, err)
}
