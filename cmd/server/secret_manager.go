package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/ports"
	"github.com/kevin07696/payme-service/internal/adapters/secrets"
	"github.com/kevin07696/payme-service/internal/config"
)

// initSecretManager builds the backend named by SECRET_MANAGER:
//   - env: secrets are environment variables (default, development)
//   - aws: AWS Secrets Manager in AWS_REGION, or AWS_SECRETS_ENDPOINT for LocalStack
//   - vault: HashiCorp Vault KV v2 at VAULT_ADDR with VAULT_TOKEN
//   - local: files under LOCAL_SECRETS_PATH
func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Manager {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Endpoint = cfg.AWSEndpoint
		awsCfg.CacheTTL = cfg.CacheTTL
		sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init aws secrets manager: %w", err)
		}
		logger.Info("Using AWS Secrets Manager", zap.String("region", cfg.AWSRegion))
		return sm, nil

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.MountPath = cfg.VaultMount
		vaultCfg.CacheTTL = cfg.CacheTTL
		sm, err := secrets.NewVaultAdapter(ctx, vaultCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		logger.Info("Using Vault secret manager", zap.String("address", cfg.VaultAddress))
		return sm, nil

	case "local":
		logger.Warn("Using local file secret manager - NOT for production use",
			zap.String("base_path", cfg.LocalBasePath),
		)
		return secrets.NewLocalSecretManager(cfg.LocalBasePath, logger), nil

	default:
		logger.Info("Using environment secret manager")
		return secrets.NewEnvSecretManager(), nil
	}
}
