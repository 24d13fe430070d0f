// Package stripe adapts the Stripe API to the processor ports.
// Every call made on behalf of a connected account sets the Stripe-Account header.
package stripe

import (
	"net/http"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// Client implements ports.Processor on the Stripe API
type Client struct {
	api    *client.API
	logger *zap.Logger
}

var _ ports.Processor = (*Client)(nil)

// NewClient creates a Stripe client using httpClient for transport
func NewClient(secretKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	return newClientWithBackends(secretKey, stripego.NewBackends(httpClient), logger)
}

func newClientWithBackends(secretKey string, backends *stripego.Backends, logger *zap.Logger) *Client {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Client{api: api, logger: logger}
}

// onAccount scopes params to a connected account when one is given
func onAccount(p *stripego.Params, connectedAccountID string) {
	if connectedAccountID != "" {
		p.SetStripeAccount(connectedAccountID)
	}
}
