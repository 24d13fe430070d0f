package auth

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kevin07696/payme-service/internal/domain"
)

// Claims are the Cognito ID token claims the service reads
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	TokenUse string `json:"token_use,omitempty"`
}

// KeySource resolves a signing key by key id
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Verifier validates RS256 tokens issued by one user pool for one app client
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
}

// NewVerifier creates a verifier for the issuer and audience
func NewVerifier(keys KeySource, issuer, audience string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, audience: audience}
}

// Verify checks the signature, issuer, audience and expiry and returns the claims
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeUnauthenticated, "invalid token", err)
	}
	if claims.Subject == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeUnauthenticated, "token has no subject")
	}
	return claims, nil
}
