package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/ports"
)

// StripeCredentials are the secrets needed to talk to Stripe
type StripeCredentials struct {
	SecretKey     string
	WebhookSecret string
}

// LoadStripeCredentials resolves the API key and webhook signing secret.
// The API key is required. A missing webhook secret is returned empty so the
// webhook endpoint can refuse events instead of the process refusing to start.
func LoadStripeCredentials(ctx context.Context, sm ports.SecretManagerAdapter, secretKeyPath, webhookSecretPath string, logger *zap.Logger) (StripeCredentials, error) {
	key, err := sm.GetSecret(ctx, secretKeyPath)
	if err != nil {
		return StripeCredentials{}, fmt.Errorf("load stripe secret key: %w", err)
	}

	creds := StripeCredentials{SecretKey: key.Value}
	if webhookSecretPath == "" {
		return creds, nil
	}
	hook, err := sm.GetSecret(ctx, webhookSecretPath)
	if err != nil {
		logger.Warn("Failed to load Stripe webhook secret",
			zap.String("path", webhookSecretPath),
			zap.Error(err),
		)
		return creds, nil
	}
	creds.WebhookSecret = hook.Value
	return creds, nil
}
