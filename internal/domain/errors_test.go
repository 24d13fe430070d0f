package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDomainErrors_Messages tests that sentinel errors carry their code and message
func TestDomainErrors_Messages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		contains string
	}{
		{"invalid_amount", ErrInvalidAmount, ErrorCodeInvalidAmount, "non-negative"},
		{"invalid_fee_configuration", ErrInvalidFeeConfiguration, ErrorCodeInvalidFeeConfiguration, "below 100"},
		{"link_not_found", ErrLinkNotFound, ErrorCodeNotFound, "link not found"},
		{"transaction_not_found", ErrTransactionNotFound, ErrorCodeNotFound, "transaction not found"},
		{"stripe_account_required", ErrStripeAccountRequired, ErrorCodeStripeAccountRequired, "stripe account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetErrorCode(tt.err))
			assert.True(t, strings.Contains(strings.ToLower(tt.err.Error()), strings.ToLower(tt.contains)),
				"error message %q does not contain %q", tt.err.Error(), tt.contains)
		})
	}
}

// TestDomainErrors_Wrapping tests that domain errors can be wrapped and unwrapped correctly
func TestDomainErrors_Wrapping(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := NewStorageError("insert transaction", cause)

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, IsStorageError(wrapped))
	assert.Contains(t, wrapped.Error(), "insert transaction")

	outer := fmt.Errorf("reconcile: %w", wrapped)
	assert.True(t, IsStorageError(outer))
	assert.Equal(t, "insert transaction", GetErrorMessage(outer))
}

// TestDomainErrors_IsComparison tests that errors.Is() works correctly for sentinels
func TestDomainErrors_IsComparison(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		shouldNot error
	}{
		{
			name:      "link_not_found_matches_itself",
			err:       ErrLinkNotFound,
			target:    ErrLinkNotFound,
			shouldNot: ErrTransactionNotFound,
		},
		{
			name:      "wrapped_transaction_not_found_matches",
			err:       fmt.Errorf("context: %w", ErrTransactionNotFound),
			target:    ErrTransactionNotFound,
			shouldNot: ErrSubscriberNotFound,
		},
		{
			name:      "invalid_amount_matches_itself",
			err:       ErrInvalidAmount,
			target:    ErrInvalidAmount,
			shouldNot: ErrInvalidFeeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.target))
			assert.False(t, errors.Is(tt.err, tt.shouldNot))
		})
	}
}

func TestDomainErrors_Classifiers(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrAccountNotFound))
	assert.True(t, IsAuthError(ErrUnauthenticated))
	assert.True(t, IsAuthError(ErrStripeAccountRequired))
	assert.True(t, IsValidationError(NewValidationError("title is required")))
	assert.True(t, IsValidationError(ErrInvalidAmount))
	assert.True(t, IsProcessorError(NewProcessorError("card declined", errors.New("x"))))
	assert.False(t, IsProcessorError(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, "plain", GetErrorMessage(errors.New("plain")))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewValidationError("bad currency").WithDetail("currency", "jpy")
	assert.Equal(t, "jpy", err.Details["currency"])
}
