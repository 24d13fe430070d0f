// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

var _ ports.Processor = (*MockProcessor)(nil)

// MockProcessor is a testify mock of the full processor surface
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreateCheckoutLink(ctx context.Context, params ports.CheckoutLinkParams) (*ports.CheckoutLink, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.CheckoutLink), args.Error(1)
}

func (m *MockProcessor) DisableCheckoutLink(ctx context.Context, processorLinkID, connectedAccountID string) error {
	args := m.Called(ctx, processorLinkID, connectedAccountID)
	return args.Error(0)
}

func (m *MockProcessor) SearchPayments(ctx context.Context, userID, linkID, connectedAccountID string) ([]ports.PaymentSummary, error) {
	args := m.Called(ctx, userID, linkID, connectedAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.PaymentSummary), args.Error(1)
}

func (m *MockProcessor) SubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string) (map[string]string, error) {
	args := m.Called(ctx, subscriptionID, connectedAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockProcessor) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string, metadata map[string]string) error {
	args := m.Called(ctx, subscriptionID, connectedAccountID, metadata)
	return args.Error(0)
}

func (m *MockProcessor) PaymentIntentMetadata(ctx context.Context, paymentIntentID, connectedAccountID string) (map[string]string, error) {
	args := m.Called(ctx, paymentIntentID, connectedAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockProcessor) InvoicePaymentIntentID(ctx context.Context, invoiceID, connectedAccountID string) (string, error) {
	args := m.Called(ctx, invoiceID, connectedAccountID)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) CheckoutSessionCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (domain.CustomerDetails, bool, error) {
	args := m.Called(ctx, paymentIntentID, connectedAccountID)
	return args.Get(0).(domain.CustomerDetails), args.Bool(1), args.Error(2)
}

func (m *MockProcessor) PaymentIntentCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (domain.CustomerDetails, error) {
	args := m.Called(ctx, paymentIntentID, connectedAccountID)
	return args.Get(0).(domain.CustomerDetails), args.Error(1)
}

func (m *MockProcessor) Transfer(ctx context.Context, amount int64, currency, destination, idempotencyKey string) (string, error) {
	args := m.Called(ctx, amount, currency, destination, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) Refund(ctx context.Context, paymentIntentID, connectedAccountID string) (string, error) {
	args := m.Called(ctx, paymentIntentID, connectedAccountID)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) CancelSubscription(ctx context.Context, subscriptionID, connectedAccountID string) error {
	args := m.Called(ctx, subscriptionID, connectedAccountID)
	return args.Error(0)
}

func (m *MockProcessor) CreateConnectedAccount(ctx context.Context, email, country string) (string, error) {
	args := m.Called(ctx, email, country)
	return args.String(0), args.Error(1)
}

// QuietCustomers stubs both customer lookups to return nothing
func (m *MockProcessor) QuietCustomers() {
	m.On("CheckoutSessionCustomer", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.CustomerDetails{}, false, nil).Maybe()
	m.On("PaymentIntentCustomer", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.CustomerDetails{}, nil).Maybe()
}
