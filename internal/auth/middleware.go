package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// PrincipalResolver loads the principal for verified claims
type PrincipalResolver interface {
	Resolve(ctx context.Context, claims *Claims) (*domain.Principal, error)
}

// Authenticator guards routes behind a Cognito bearer token
type Authenticator struct {
	verifier TokenVerifier
	resolver PrincipalResolver
	logger   *zap.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(verifier TokenVerifier, resolver PrincipalResolver, logger *zap.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, resolver: resolver, logger: logger}
}

// RequirePrincipal rejects requests without a valid token with 401. With statuses
// given, callers whose seller account is missing or in another status get 403.
func (a *Authenticator) RequirePrincipal(statuses ...domain.AccountStatus) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				response.Error(w, domain.ErrUnauthenticated)
				return
			}

			claims, err := a.verifier.Verify(r.Context(), token)
			if err != nil {
				a.logger.Debug("Rejected token", zap.Error(err))
				response.Error(w, domain.ErrUnauthenticated)
				return
			}

			p, err := a.resolver.Resolve(r.Context(), claims)
			if err != nil {
				a.logger.Error("Failed to resolve principal", zap.Error(err), zap.String("sub", claims.Subject))
				response.Error(w, err)
				return
			}

			if len(statuses) > 0 && !p.HasStatus(statuses...) {
				response.Error(w, domain.ErrStripeAccountRequired)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
