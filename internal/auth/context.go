package auth

import (
	"context"

	"github.com/kevin07696/payme-service/internal/domain"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the authenticated caller in ctx
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}
