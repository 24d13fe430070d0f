package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// minRefreshInterval throttles refetches triggered by unknown key ids
const minRefreshInterval = 30 * time.Second

// JWKSCache holds the user pool's signing keys, keyed by kid
type JWKSCache struct {
	client    ports.HTTPClient
	logger    *zap.Logger
	now       func() time.Time
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
	url       string
	ttl       time.Duration
	mu        sync.RWMutex
}

// NewJWKSCache creates a cache that fetches url and keeps the keys for ttl
func NewJWKSCache(client ports.HTTPClient, url string, ttl time.Duration, logger *zap.Logger) *JWKSCache {
	return &JWKSCache{
		client: client,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]*rsa.PublicKey),
		url:    url,
		ttl:    ttl,
	}
}

// Key returns the public key for kid, refreshing the set when it has expired or
// does not contain kid
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := c.now().Before(c.expiresAt)
	recent := c.now().Sub(c.fetchedAt) < minRefreshInterval
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if !ok && fresh && recent {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	if err := c.refresh(ctx); err != nil {
		if ok {
			// Stale keys stay usable while the endpoint is down
			c.logger.Warn("JWKS refresh failed, using cached key", zap.Error(err))
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

// AddKey installs a key directly and marks the set fresh
func (c *JWKSCache) AddKey(kid string, key *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[kid] = key
	c.fetchedAt = c.now()
	c.expiresAt = c.fetchedAt.Add(c.ttl)
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build JWKS request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	var set jsonWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			c.logger.Warn("Skipping malformed JWK", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.expiresAt = c.fetchedAt.Add(c.ttl)
	c.logger.Debug("JWKS refreshed", zap.Int("keys", len(keys)))
	return nil
}

// parseRSAKey builds a public key from the base64url modulus and exponent
func parseRSAKey(k jsonWebKey) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
