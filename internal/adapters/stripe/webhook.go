package stripe

import (
	"errors"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrWebhookSecretMissing is returned when no signing secret is configured
var ErrWebhookSecretMissing = errors.New("stripe webhook secret not configured")

// WebhookVerifier checks Stripe-Signature headers against the endpoint secret
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier creates a verifier for the given endpoint secret
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Configured reports whether a signing secret is present
func (v *WebhookVerifier) Configured() bool {
	return v != nil && v.secret != ""
}

// Verify checks the signature and decodes the event envelope.
// Events from other API versions are accepted; payloads are parsed by this service, not the SDK.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (stripego.Event, error) {
	if !v.Configured() {
		return stripego.Event{}, ErrWebhookSecretMissing
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
