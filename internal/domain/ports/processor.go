package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payme-service/internal/domain"
)

// CheckoutLinkParams describes a hosted checkout link to create at the processor.
// ConnectedAccountID empty means the platform account.
type CheckoutLinkParams struct {
	Metadata              map[string]string
	RequireFields         []string
	Kind                  domain.LinkKind
	Title                 string
	Description           string
	Currency              string
	Interval              domain.BillingInterval
	ConnectedAccountID    string
	TotalAmount           int64
	ApplicationFeeAmount  int64
	ApplicationFeePercent float64
}

// CheckoutLink is the processor's hosted link
type CheckoutLink struct {
	ID  string
	URL string
}

// PaymentSummary is a processor-side view of a payment
type PaymentSummary struct {
	Created  time.Time `json:"created_at"`
	ID       string    `json:"payment_intent_id"`
	Currency string    `json:"currency"`
	Status   string    `json:"status"`
	Amount   int64     `json:"amount"`
}

// CheckoutLinkProcessor creates and disables hosted checkout links
type CheckoutLinkProcessor interface {
	CreateCheckoutLink(ctx context.Context, params CheckoutLinkParams) (*CheckoutLink, error)
	DisableCheckoutLink(ctx context.Context, processorLinkID, connectedAccountID string) error
	SearchPayments(ctx context.Context, userID, linkID, connectedAccountID string) ([]PaymentSummary, error)
}

// ObjectFetcher reads and heals processor objects referenced by events
type ObjectFetcher interface {
	SubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string) (map[string]string, error)
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string, metadata map[string]string) error
	PaymentIntentMetadata(ctx context.Context, paymentIntentID, connectedAccountID string) (map[string]string, error)
	InvoicePaymentIntentID(ctx context.Context, invoiceID, connectedAccountID string) (string, error)
}

// CustomerLookup finds payer contact details for a payment
type CustomerLookup interface {
	// CheckoutSessionCustomer reads the first checkout session for the payment intent.
	// found is false when no session exists.
	CheckoutSessionCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (details domain.CustomerDetails, found bool, err error)

	// PaymentIntentCustomer reads billing details from the intent's latest charge
	PaymentIntentCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (domain.CustomerDetails, error)
}

// TransferProcessor moves platform-held funds to connected accounts.
// Repeating a call with the same idempotencyKey never moves funds twice.
type TransferProcessor interface {
	Transfer(ctx context.Context, amount int64, currency, destination, idempotencyKey string) (transferID string, err error)
}

// RefundProcessor refunds settled payments
type RefundProcessor interface {
	Refund(ctx context.Context, paymentIntentID, connectedAccountID string) (status string, err error)
}

// SubscriptionProcessor manages recurring billing
type SubscriptionProcessor interface {
	CancelSubscription(ctx context.Context, subscriptionID, connectedAccountID string) error
}

// AccountProcessor provisions connected accounts
type AccountProcessor interface {
	CreateConnectedAccount(ctx context.Context, email, country string) (stripeAccountID string, err error)
}

// Processor is the full processor surface, satisfied by the Stripe adapter
type Processor interface {
	CheckoutLinkProcessor
	ObjectFetcher
	CustomerLookup
	TransferProcessor
	RefundProcessor
	SubscriptionProcessor
	AccountProcessor
}
