package errors

import (
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryDeclined       ErrorCategory = "declined"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryRateLimited    ErrorCategory = "rate_limited"
	CategoryIdempotency    ErrorCategory = "idempotency"
	CategorySystemError    ErrorCategory = "system_error"
	CategoryNetworkError   ErrorCategory = "network_error"
)

// ProcessorError represents a payment processor failure with enough context to decide
// whether to retry and what to show the seller
type ProcessorError struct {
	Err              error
	Details          map[string]interface{}
	Code             string
	Message          string
	ProcessorMessage string
	RequestID        string
	Category         ErrorCategory
	HTTPStatus       int
	IsRetriable      bool
}

func (e *ProcessorError) Error() string {
	if e.ProcessorMessage != "" {
		return fmt.Sprintf("%s: %s (processor: %s)", e.Code, e.Message, e.ProcessorMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the SDK error
func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// UserMessage is the text safe to return to API callers
func (e *ProcessorError) UserMessage() string {
	if e.ProcessorMessage != "" && e.Category != CategorySystemError && e.Category != CategoryAuthentication {
		return e.ProcessorMessage
	}
	return e.Message
}

// NewProcessorError creates a new processor error
func NewProcessorError(code, message string, category ErrorCategory, retriable bool) *ProcessorError {
	return &ProcessorError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
		Details:     make(map[string]interface{}),
	}
}
