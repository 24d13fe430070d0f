package stripe

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// CreateCheckoutLink creates a Product, a Price and a PaymentLink.
// Subscription links get a recurring Price and carry metadata on the subscription;
// one-time links carry it on the payment intent.
func (c *Client) CreateCheckoutLink(ctx context.Context, p ports.CheckoutLinkParams) (*ports.CheckoutLink, error) {
	productParams := &stripego.ProductParams{
		Name: stripego.String(p.Title),
	}
	if p.Description != "" {
		productParams.Description = stripego.String(p.Description)
	}
	productParams.Context = ctx
	onAccount(&productParams.Params, p.ConnectedAccountID)

	product, err := c.api.Products.New(productParams)
	if err != nil {
		c.logger.Error("Failed to create Stripe product", zap.Error(err), zap.String("stripe_account", p.ConnectedAccountID))
		return nil, wrapError(err)
	}

	price, err := c.api.Prices.New(priceParams(ctx, p, product.ID))
	if err != nil {
		c.logger.Error("Failed to create Stripe price", zap.Error(err), zap.String("product_id", product.ID))
		return nil, wrapError(err)
	}

	link, err := c.api.PaymentLinks.New(paymentLinkParams(ctx, p, price.ID))
	if err != nil {
		c.logger.Error("Failed to create Stripe payment link", zap.Error(err), zap.String("price_id", price.ID))
		return nil, wrapError(err)
	}

	c.logger.Info("Stripe payment link created",
		zap.String("payment_link_id", link.ID),
		zap.String("kind", string(p.Kind)),
		zap.String("stripe_account", p.ConnectedAccountID),
	)
	return &ports.CheckoutLink{ID: link.ID, URL: link.URL}, nil
}

func priceParams(ctx context.Context, p ports.CheckoutLinkParams, productID string) *stripego.PriceParams {
	params := &stripego.PriceParams{
		Product:    stripego.String(productID),
		Currency:   stripego.String(strings.ToLower(p.Currency)),
		UnitAmount: stripego.Int64(p.TotalAmount),
	}
	if p.Kind == domain.LinkKindSubscription {
		params.Recurring = &stripego.PriceRecurringParams{
			Interval: stripego.String(string(p.Interval)),
		}
	}
	params.Context = ctx
	onAccount(&params.Params, p.ConnectedAccountID)
	return params
}

// paymentLinkParams maps require_fields and fee settings onto the PaymentLink request
func paymentLinkParams(ctx context.Context, p ports.CheckoutLinkParams, priceID string) *stripego.PaymentLinkParams {
	params := &stripego.PaymentLinkParams{
		LineItems: []*stripego.PaymentLinkLineItemParams{{
			Price:    stripego.String(priceID),
			Quantity: stripego.Int64(1),
		}},
		Metadata: p.Metadata,
	}

	connected := p.ConnectedAccountID != ""
	if p.Kind == domain.LinkKindSubscription {
		params.SubscriptionData = &stripego.PaymentLinkSubscriptionDataParams{Metadata: p.Metadata}
		if connected && p.ApplicationFeePercent > 0 {
			params.ApplicationFeePercent = stripego.Float64(p.ApplicationFeePercent)
		}
	} else {
		params.PaymentIntentData = &stripego.PaymentLinkPaymentIntentDataParams{Metadata: p.Metadata}
		if connected && p.ApplicationFeeAmount > 0 {
			params.ApplicationFeeAmount = stripego.Int64(p.ApplicationFeeAmount)
		}
		if slices.Contains(p.RequireFields, domain.RequireEmail) {
			params.CustomerCreation = stripego.String(string(stripego.PaymentLinkCustomerCreationAlways))
		}
	}

	if slices.Contains(p.RequireFields, domain.RequireAddress) {
		params.BillingAddressCollection = stripego.String(string(stripego.PaymentLinkBillingAddressCollectionRequired))
	}
	if slices.Contains(p.RequireFields, domain.RequirePhone) {
		params.PhoneNumberCollection = &stripego.PaymentLinkPhoneNumberCollectionParams{Enabled: stripego.Bool(true)}
	}
	if slices.Contains(p.RequireFields, domain.RequireName) {
		// Not modelled by this SDK version
		params.AddExtra("name_collection[individual][enabled]", "true")
	}

	params.Context = ctx
	onAccount(&params.Params, p.ConnectedAccountID)
	return params
}

// DisableCheckoutLink deactivates a payment link so it stops accepting payments
func (c *Client) DisableCheckoutLink(ctx context.Context, processorLinkID, connectedAccountID string) error {
	params := &stripego.PaymentLinkParams{Active: stripego.Bool(false)}
	params.Context = ctx
	onAccount(&params.Params, connectedAccountID)

	if _, err := c.api.PaymentLinks.Update(processorLinkID, params); err != nil {
		c.logger.Error("Failed to disable Stripe payment link",
			zap.Error(err),
			zap.String("payment_link_id", processorLinkID),
			zap.String("stripe_account", connectedAccountID),
		)
		return wrapError(err)
	}
	return nil
}

// SearchPayments finds payment intents tagged with the user and link
func (c *Client) SearchPayments(ctx context.Context, userID, linkID, connectedAccountID string) ([]ports.PaymentSummary, error) {
	params := &stripego.PaymentIntentSearchParams{}
	params.Query = paymentSearchQuery(userID, linkID)
	params.Context = ctx
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	var out []ports.PaymentSummary
	iter := c.api.PaymentIntents.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		amount := pi.AmountReceived
		if amount == 0 {
			amount = pi.Amount
		}
		out = append(out, ports.PaymentSummary{
			ID:       pi.ID,
			Amount:   amount,
			Currency: string(pi.Currency),
			Status:   string(pi.Status),
			Created:  time.Unix(pi.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError(err)
	}
	return out, nil
}

func paymentSearchQuery(userID, linkID string) string {
	return fmt.Sprintf("metadata['user_id']:'%s' AND metadata['link_id']:'%s'", escapeSearch(userID), escapeSearch(linkID))
}

func escapeSearch(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
