package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., Stripe API key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for retrieving secrets from a secret management service
// Supports multiple backends: AWS Secrets Manager, HashiCorp Vault, local files and process env
// Implementation is responsible for:
//   - Authentication with the secret manager service
//   - Caching secrets appropriately (with TTL)
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - AWS: "payme-service/stripe/secret_key" or full ARN
	//   - Vault: "payme-service/stripe" under the configured KV mount
	//   - Local: file path relative to the base directory
	//   - Env: the environment variable name
	// Returns error if:
	//   - Secret does not exist
	//   - Insufficient permissions
	//   - Network communication fails
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
