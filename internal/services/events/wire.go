package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kevin07696/payme-service/internal/domain"
)

// ObjectRef is a reference to another Stripe object, sent either as a bare id
// or as the expanded object
type ObjectRef struct {
	ID string
}

// UnmarshalJSON accepts "id", {"id": "..."} and null
func (r *ObjectRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		r.ID = ""
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &r.ID)
	case b[0] == '{':
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		r.ID = obj.ID
		return nil
	}
	return fmt.Errorf("object reference: unexpected JSON %s", b)
}

type address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

func (a *address) format() string {
	if a == nil {
		return ""
	}
	return domain.JoinAddress(a.Line1, a.Line2, a.City, a.PostalCode, a.State, a.Country)
}

type billingDetails struct {
	Address *address `json:"address"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
}

func (b *billingDetails) customer() domain.CustomerDetails {
	if b == nil {
		return domain.CustomerDetails{}
	}
	return domain.CustomerDetails{
		Email:   b.Email,
		Name:    b.Name,
		Phone:   b.Phone,
		Address: b.Address.format(),
	}
}

type charge struct {
	BillingDetails *billingDetails   `json:"billing_details"`
	Metadata       map[string]string `json:"metadata"`
	PaymentIntent  ObjectRef         `json:"payment_intent"`
	ID             string            `json:"id"`
	Currency       string            `json:"currency"`
	ReceiptEmail   string            `json:"receipt_email"`
	Amount         int64             `json:"amount"`
	Created        int64             `json:"created"`
}

// customer reads billing details, falling back to receipt_email for the address of record
func (c *charge) customer() domain.CustomerDetails {
	out := c.BillingDetails.customer()
	if out.Email == "" {
		out.Email = c.ReceiptEmail
	}
	return out
}

type chargeList struct {
	Data []charge `json:"data"`
}

type paymentIntent struct {
	Metadata       map[string]string `json:"metadata"`
	Charges        *chargeList       `json:"charges"`
	ID             string            `json:"id"`
	Currency       string            `json:"currency"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Created        int64             `json:"created"`
}

func (p *paymentIntent) firstCharge() *charge {
	if p.Charges == nil || len(p.Charges.Data) == 0 {
		return nil
	}
	return &p.Charges.Data[0]
}

type subscriptionDetails struct {
	Metadata     map[string]string `json:"metadata"`
	Subscription ObjectRef         `json:"subscription"`
}

type subscriptionItemDetails struct {
	Subscription ObjectRef `json:"subscription"`
}

type invoiceLineParent struct {
	SubscriptionItemDetails *subscriptionItemDetails `json:"subscription_item_details"`
}

type invoiceLine struct {
	Metadata     map[string]string  `json:"metadata"`
	Parent       *invoiceLineParent `json:"parent"`
	Subscription ObjectRef          `json:"subscription"`
}

type invoiceParent struct {
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
}

type invoiceLines struct {
	Data []invoiceLine `json:"data"`
}

type invoice struct {
	Parent        *invoiceParent `json:"parent"`
	Lines         invoiceLines   `json:"lines"`
	Subscription  ObjectRef      `json:"subscription"`
	PaymentIntent ObjectRef      `json:"payment_intent"`
	ID            string         `json:"id"`
	Currency      string         `json:"currency"`
	CustomerEmail string         `json:"customer_email"`
	BillingReason string         `json:"billing_reason"`
	AmountPaid    int64          `json:"amount_paid"`
	Created       int64          `json:"created"`
}

func (inv *invoice) subscriptionDetails() *subscriptionDetails {
	if inv.Parent == nil {
		return nil
	}
	return inv.Parent.SubscriptionDetails
}

func (inv *invoice) firstLine() *invoiceLine {
	if len(inv.Lines.Data) == 0 {
		return nil
	}
	return &inv.Lines.Data[0]
}

// subscriptionID walks the places Stripe has put the subscription id across API versions
func (inv *invoice) subscriptionID() string {
	if inv.Subscription.ID != "" {
		return inv.Subscription.ID
	}
	if sd := inv.subscriptionDetails(); sd != nil && sd.Subscription.ID != "" {
		return sd.Subscription.ID
	}
	line := inv.firstLine()
	if line == nil {
		return ""
	}
	if line.Subscription.ID != "" {
		return line.Subscription.ID
	}
	if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil {
		return line.Parent.SubscriptionItemDetails.Subscription.ID
	}
	return ""
}

// Subscription is the subset of a Stripe Subscription the service reads
type Subscription struct {
	Metadata      map[string]string `json:"metadata"`
	LatestInvoice ObjectRef         `json:"latest_invoice"`
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Customer      ObjectRef         `json:"customer"`
	CanceledAt    int64             `json:"canceled_at"`
	Created       int64             `json:"created"`
}

// IsCanceled reports whether the subscription stopped billing
func (s *Subscription) IsCanceled() bool {
	return s.Status == "canceled" || s.CanceledAt > 0
}

// CheckoutSession is the subset of a Stripe Checkout Session the service reads
type CheckoutSession struct {
	CustomerDetails *billingDetails `json:"customer_details"`
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	CustomerEmail   string          `json:"customer_email"`
	Subscription    ObjectRef       `json:"subscription"`
	PaymentLink     ObjectRef       `json:"payment_link"`
	Created         int64           `json:"created"`
}

// Email returns the best known customer email on the session
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// AccountUpdate is the subset of a Stripe Account carried by account.updated
type AccountUpdate struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	ChargesEnabled   bool   `json:"charges_enabled"`
}
