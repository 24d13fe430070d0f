package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/memory"
	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/testutil/fixtures"
	"github.com/kevin07696/payme-service/pkg/observability"
)

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_pool"
	testAudience = "client-123"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, mutate func(*Claims)) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "cognito-sub-1",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:    "seller@example.com",
		TokenUse: "id",
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksServer(t *testing.T, key *rsa.PublicKey, kid string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(jsonWebKeySet{Keys: []jsonWebKey{{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSCache_FetchesAndCaches(t *testing.T) {
	key := generateKey(t)
	var hits atomic.Int32
	srv := jwksServer(t, &key.PublicKey, "kid-1", &hits)

	cache := NewJWKSCache(srv.Client(), srv.URL, time.Hour, zap.NewNop())
	got, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, got.N)
	assert.Equal(t, key.PublicKey.E, got.E)

	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestJWKSCache_RefreshesWhenExpired(t *testing.T) {
	key := generateKey(t)
	var hits atomic.Int32
	srv := jwksServer(t, &key.PublicKey, "kid-1", &hits)

	clock := time.Now()
	cache := NewJWKSCache(srv.Client(), srv.URL, time.Hour, zap.NewNop())
	cache.now = func() time.Time { return clock }

	_, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestJWKSCache_UnknownKidThrottled(t *testing.T) {
	key := generateKey(t)
	var hits atomic.Int32
	srv := jwksServer(t, &key.PublicKey, "kid-1", &hits)

	cache := NewJWKSCache(srv.Client(), srv.URL, time.Hour, zap.NewNop())
	_, err := cache.Key(context.Background(), "kid-other")
	assert.Error(t, err)
	_, err = cache.Key(context.Background(), "kid-other")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestVerifier(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)
	cache := NewJWKSCache(http.DefaultClient, "http://unused.invalid", time.Hour, zap.NewNop())
	cache.AddKey("kid-1", &key.PublicKey)
	v := NewVerifier(cache, testIssuer, testAudience)

	t.Run("valid", func(t *testing.T) {
		claims, err := v.Verify(context.Background(), signToken(t, key, "kid-1", nil))
		require.NoError(t, err)
		assert.Equal(t, "cognito-sub-1", claims.Subject)
		assert.Equal(t, "seller@example.com", claims.Email)
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"wrong audience", func(t *testing.T) string {
			return signToken(t, key, "kid-1", func(c *Claims) { c.Audience = jwt.ClaimStrings{"someone-else"} })
		}},
		{"wrong issuer", func(t *testing.T) string {
			return signToken(t, key, "kid-1", func(c *Claims) { c.Issuer = "https://evil.example.com" })
		}},
		{"expired", func(t *testing.T) string {
			return signToken(t, key, "kid-1", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) })
		}},
		{"wrong key", func(t *testing.T) string { return signToken(t, other, "kid-1", nil) }},
		{"garbage", func(t *testing.T) string { return "not.a.token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token(t))
			assert.True(t, domain.IsAuthError(err), "got %v", err)
		})
	}
}

func TestResolver(t *testing.T) {
	store := memory.NewStore()
	reg := observability.NopRecorder{}
	r := NewResolver(store, store, reg, zap.NewNop())
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-9"}, Email: "a@example.com"}

	p1, err := r.Resolve(context.Background(), claims)
	require.NoError(t, err)
	assert.Nil(t, p1.Account)

	p2, err := r.Resolve(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, p1.UserID, p2.UserID)

	_, err = store.CreateIfAbsent(context.Background(), nil, fixtures.NewAccount().WithUserID(p1.UserID).Build())
	require.NoError(t, err)
	p3, err := r.Resolve(context.Background(), claims)
	require.NoError(t, err)
	require.NotNil(t, p3.Account)
	assert.Equal(t, domain.AccountStatusNew, p3.Account.Status)
}

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(context.Context, string) (*Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub"}}, nil
}

type stubResolver struct{ p *domain.Principal }

func (s stubResolver) Resolve(context.Context, *Claims) (*domain.Principal, error) {
	return s.p, nil
}

func TestRequirePrincipal(t *testing.T) {
	verified := fixtures.NewAccount().WithStripeAccount("acct_1").Verified().Principal()
	noAccount := &domain.Principal{UserID: "u1"}

	tests := []struct {
		name       string
		header     string
		verifier   stubVerifier
		principal  *domain.Principal
		statuses   []domain.AccountStatus
		wantStatus int
	}{
		{"missing header", "", stubVerifier{}, verified, nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubVerifier{}, verified, nil, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubVerifier{err: domain.ErrUnauthenticated}, verified, nil, http.StatusUnauthorized},
		{"no status required", "Bearer ok", stubVerifier{}, noAccount, nil, http.StatusOK},
		{"account required", "Bearer ok", stubVerifier{}, noAccount, []domain.AccountStatus{domain.AccountStatusNew}, http.StatusForbidden},
		{"status allowed", "Bearer ok", stubVerifier{}, verified, []domain.AccountStatus{domain.AccountStatusVerified}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.verifier, stubResolver{p: tt.principal}, zap.NewNop())
			var seen *domain.Principal
			h := a.RequirePrincipal(tt.statuses...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/links/payment", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.principal, seen)
			}
			if tt.wantStatus == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "STRIPE_ACCOUNT_REQUIRED")
			}
		})
	}
}
