package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// Resolver turns verified claims into a principal
type Resolver struct {
	users    ports.UserRepository
	accounts ports.AccountRepository
	metrics  observability.Recorder
	logger   *zap.Logger
}

// NewResolver creates a new resolver
func NewResolver(users ports.UserRepository, accounts ports.AccountRepository, metrics observability.Recorder, logger *zap.Logger) *Resolver {
	return &Resolver{users: users, accounts: accounts, metrics: metrics, logger: logger}
}

// Resolve maps the token subject to a user, creating one on first sight, and
// attaches the seller account when there is one
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*domain.Principal, error) {
	user, created, err := r.users.EnsureUser(ctx, nil, domain.IdentityProviderCognito, claims.Subject, claims.Email)
	if err != nil {
		return nil, domain.NewStorageError("failed to resolve user", err)
	}
	if created {
		r.metrics.UserCreated()
		r.logger.Info("User created", zap.String("user_id", user.ID))
	}

	email := claims.Email
	if email == "" {
		email = user.Email
	}
	p := &domain.Principal{UserID: user.ID, Email: email, Subject: claims.Subject}

	acct, err := r.accounts.Get(ctx, nil, user.ID)
	switch {
	case err == nil:
		p.Account = acct
	case !domain.IsNotFoundError(err):
		return nil, domain.NewStorageError("failed to load seller account", err)
	}
	return p, nil
}
