package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/kevin07696/payme-service/internal/adapters/ports"
)

// envSecretManager reads secrets straight from the process environment.
// The path is the variable name.
type envSecretManager struct {
	lookup func(string) (string, bool)
}

// NewEnvSecretManager creates a secret manager backed by environment variables
func NewEnvSecretManager() ports.SecretManagerAdapter {
	return &envSecretManager{lookup: os.LookupEnv}
}

// GetSecret returns the value of the environment variable named path
func (m *envSecretManager) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	value, ok := m.lookup(path)
	if !ok || value == "" {
		return nil, fmt.Errorf("secret not found: %s", path)
	}
	return &ports.Secret{Value: value, Version: "env"}, nil
}
