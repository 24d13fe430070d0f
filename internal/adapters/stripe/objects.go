package stripe

import (
	"context"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
)

// SubscriptionMetadata reads a subscription's metadata
func (c *Client) SubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string) (map[string]string, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapError(err)
	}
	return sub.Metadata, nil
}

// UpdateSubscriptionMetadata merges metadata onto a subscription
func (c *Client) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID, connectedAccountID string, metadata map[string]string) error {
	params := &stripego.SubscriptionParams{}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		c.logger.Warn("Failed to update subscription metadata",
			zap.Error(err),
			zap.String("subscription_id", subscriptionID),
		)
		return wrapError(err)
	}
	return nil
}

// PaymentIntentMetadata reads a payment intent's metadata
func (c *Client) PaymentIntentMetadata(ctx context.Context, paymentIntentID, connectedAccountID string) (map[string]string, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, wrapError(err)
	}
	return pi.Metadata, nil
}

// InvoicePaymentIntentID returns the id of the payment intent that paid an invoice, if any
func (c *Client) InvoicePaymentIntentID(ctx context.Context, invoiceID, connectedAccountID string) (string, error) {
	params := &stripego.InvoiceParams{}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	inv, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return "", wrapError(err)
	}
	if inv.PaymentIntent == nil {
		return "", nil
	}
	return inv.PaymentIntent.ID, nil
}

// CheckoutSessionCustomer reads customer details from the checkout session that created
// the payment intent. Preference: customer_details, then customer_email, then shipping.
func (c *Client) CheckoutSessionCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (domain.CustomerDetails, bool, error) {
	params := &stripego.CheckoutSessionListParams{
		PaymentIntent: stripego.String(paymentIntentID),
	}
	params.Limit = stripego.Int64(1)
	params.Single = true
	params.Context = ctx
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	iter := c.api.CheckoutSessions.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return domain.CustomerDetails{}, false, wrapError(err)
		}
		return domain.CustomerDetails{}, false, nil
	}
	return sessionCustomer(iter.CheckoutSession()), true, nil
}

func sessionCustomer(s *stripego.CheckoutSession) domain.CustomerDetails {
	var out domain.CustomerDetails
	if cd := s.CustomerDetails; cd != nil {
		out = domain.CustomerDetails{
			Email:   cd.Email,
			Name:    cd.Name,
			Phone:   cd.Phone,
			Address: formatAddress(cd.Address),
		}
	}
	if out.Email == "" {
		out.Email = s.CustomerEmail
	}
	if sd := s.ShippingDetails; sd != nil {
		out = out.Merge(domain.CustomerDetails{Name: sd.Name, Address: formatAddress(sd.Address)})
	}
	return out
}

// PaymentIntentCustomer reads billing details from the intent's latest charge
func (c *Client) PaymentIntentCustomer(ctx context.Context, paymentIntentID, connectedAccountID string) (domain.CustomerDetails, error) {
	params := &stripego.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return domain.CustomerDetails{}, wrapError(err)
	}
	return chargeCustomer(pi.LatestCharge), nil
}

func chargeCustomer(ch *stripego.Charge) domain.CustomerDetails {
	if ch == nil {
		return domain.CustomerDetails{}
	}
	var out domain.CustomerDetails
	if bd := ch.BillingDetails; bd != nil {
		out = domain.CustomerDetails{
			Email:   bd.Email,
			Name:    bd.Name,
			Phone:   bd.Phone,
			Address: formatAddress(bd.Address),
		}
	}
	if out.Email == "" {
		out.Email = ch.ReceiptEmail
	}
	return out
}

func formatAddress(a *stripego.Address) string {
	if a == nil {
		return ""
	}
	return domain.JoinAddress(a.Line1, a.Line2, a.City, a.PostalCode, a.State, a.Country)
}
