package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransactionStatus is the outcome of a payment attempt
type TransactionStatus string

const (
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one payment attempt against a link.
// Keyed by (UserID, SortKey); ExternalPaymentID is unique per user.
type Transaction struct {
	CreatedAt         time.Time         `json:"created_at"`
	UserID            string            `json:"user_id"`
	SortKey           string            `json:"date_transaction_id"`
	ExternalPaymentID string            `json:"transaction_id"`
	LinkID            string            `json:"link_id"`
	LinkKind          LinkKind          `json:"link_kind"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	RefundStatus      string            `json:"refund_status"`
	StripeAccountID   string            `json:"stripe_account_id,omitempty"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerName      string            `json:"customer_name"`
	CustomerPhone     string            `json:"customer_phone"`
	CustomerAddress   string            `json:"customer_address"`
	Amount            int64             `json:"amount"`
	Refunded          bool              `json:"refunded"`
}

// IsSucceeded returns true if the payment settled
func (t *Transaction) IsSucceeded() bool {
	return t.Status == TransactionStatusSucceeded
}

// CanBeRefunded returns true if a refund may be issued
func (t *Transaction) CanBeRefunded() bool {
	return t.IsSucceeded() && !t.Refunded
}

// SortKey builds the range-queryable key "YYYY-MM-DD#id" using the UTC date of created
func SortKey(created time.Time, externalID string) string {
	return fmt.Sprintf("%s#%s", created.UTC().Format(time.DateOnly), externalID)
}

// SortKeyRange returns the inclusive key bounds covering the dates start..end
func SortKeyRange(start, end string) (string, string) {
	return start, end + "#~"
}

// NormalizePaymentIntentID adds the pi_ prefix when missing
func NormalizePaymentIntentID(id string) string {
	if id == "" || strings.HasPrefix(id, "pi_") {
		return id
	}
	return "pi_" + id
}

// NormalizeInvoicePaymentID prefers the invoice's payment intent and falls back to in_<invoice>
func NormalizeInvoicePaymentID(invoiceID, paymentIntentID string) string {
	if strings.HasPrefix(paymentIntentID, "pi_") {
		return paymentIntentID
	}
	if strings.HasPrefix(invoiceID, "in_") {
		return invoiceID
	}
	return "in_" + invoiceID
}
