package stripe

import (
	"context"
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// Transfer moves platform-held funds to a connected account
func (c *Client) Transfer(ctx context.Context, amount int64, currency, destination, idempotencyKey string) (string, error) {
	params := &stripego.TransferParams{
		Amount:      stripego.Int64(amount),
		Currency:    stripego.String(strings.ToLower(currency)),
		Destination: stripego.String(destination),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	tr, err := c.api.Transfers.New(params)
	if err != nil {
		c.logger.Error("Stripe transfer failed",
			zap.Error(err),
			zap.Int64("amount", amount),
			zap.String("currency", currency),
			zap.String("destination", destination),
		)
		return "", wrapError(err)
	}
	return tr.ID, nil
}

// Refund fully refunds a payment intent and returns the refund status
func (c *Client) Refund(ctx context.Context, paymentIntentID, connectedAccountID string) (string, error) {
	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(paymentIntentID),
	}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	r, err := c.api.Refunds.New(params)
	if err != nil {
		c.logger.Error("Stripe refund failed",
			zap.Error(err),
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("stripe_account", connectedAccountID),
		)
		return "", wrapError(err)
	}
	return string(r.Status), nil
}

// CancelSubscription cancels a subscription immediately
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, connectedAccountID string) error {
	params := &stripego.SubscriptionCancelParams{}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	if _, err := c.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		c.logger.Error("Stripe subscription cancel failed",
			zap.Error(err),
			zap.String("subscription_id", subscriptionID),
		)
		return wrapError(err)
	}
	return nil
}

// CreateConnectedAccount creates an Express account able to take card payments and receive transfers
func (c *Client) CreateConnectedAccount(ctx context.Context, email, country string) (string, error) {
	params := &stripego.AccountParams{
		Type:    stripego.String(string(stripego.AccountTypeExpress)),
		Country: stripego.String(strings.ToUpper(country)),
		Email:   stripego.String(email),
		Capabilities: &stripego.AccountCapabilitiesParams{
			CardPayments: &stripego.AccountCapabilitiesCardPaymentsParams{Requested: stripego.Bool(true)},
			Transfers:    &stripego.AccountCapabilitiesTransfersParams{Requested: stripego.Bool(true)},
		},
	}
	params.Context = ctx

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		c.logger.Error("Stripe account creation failed", zap.Error(err), zap.String("country", country))
		return "", wrapError(err)
	}
	return acct.ID, nil
}
