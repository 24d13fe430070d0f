package domain

import (
	"strings"
	"time"
)

// CustomerDetails are best-effort payer contact fields
type CustomerDetails struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Complete returns true once every field is known
func (c CustomerDetails) Complete() bool {
	return c.Email != "" && c.Name != "" && c.Phone != "" && c.Address != ""
}

// Merge fills blank fields of c from other
func (c CustomerDetails) Merge(other CustomerDetails) CustomerDetails {
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.Phone == "" {
		c.Phone = other.Phone
	}
	if c.Address == "" {
		c.Address = other.Address
	}
	return c
}

// PaymentRecord is the canonical, attribution-ready form of a payment event
type PaymentRecord struct {
	Created            time.Time
	Customer           CustomerDetails
	UserID             string
	LinkID             string
	Currency           string
	ExternalID         string
	ConnectedAccountID string
	SubscriptionID     string
	BillingReason      string
	BaseAmount         int64
	Amount             int64
}

// SettledOnPlatform is true when funds landed in the platform's own account
func (r *PaymentRecord) SettledOnPlatform() bool {
	return r.ConnectedAccountID == ""
}

// Transaction builds the row persisted for this record
func (r *PaymentRecord) Transaction(kind LinkKind, status TransactionStatus) *Transaction {
	return &Transaction{
		UserID:            r.UserID,
		SortKey:           SortKey(r.Created, r.ExternalID),
		ExternalPaymentID: r.ExternalID,
		LinkID:            r.LinkID,
		LinkKind:          kind,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Status:            status,
		StripeAccountID:   r.ConnectedAccountID,
		CustomerEmail:     r.Customer.Email,
		CustomerName:      r.Customer.Name,
		CustomerPhone:     r.Customer.Phone,
		CustomerAddress:   r.Customer.Address,
		CreatedAt:         r.Created.UTC(),
	}
}

// FeeQuote is the customer-facing price for a base amount
type FeeQuote struct {
	Currency                   string  `json:"currency"`
	BaseAmountCents            int64   `json:"base_amount_cents"`
	TotalCents                 int64   `json:"total_cents"`
	ServiceFeeCents            int64   `json:"service_fee_cents"`
	ServiceFeePercentEffective float64 `json:"service_fee_percent_effective"`
	StripeFeePercent           float64 `json:"stripe_fee_percent"`
}

// JoinAddress joins the non-empty address parts with ", ".
// Callers pass line1, line2, city, postal code, state, country in that order.
func JoinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
