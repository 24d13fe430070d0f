// Package middleware holds HTTP middleware shared by the API surfaces.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ipLimiter tracks a rate limiter and its last access time
type ipLimiter struct {
	lastAccess time.Time
	limiter    *rate.Limiter
}

// RateLimiter applies a token bucket per client IP with periodic cleanup of idle entries
type RateLimiter struct {
	limiters        map[string]*ipLimiter
	stopCh          chan struct{}
	logger          *zap.Logger
	now             func() time.Time
	rate            rate.Limit
	cleanupInterval time.Duration
	burst           int
	maxSize         int
	mu              sync.Mutex
	stopOnce        sync.Once
}

// NewRateLimiter creates a limiter allowing requestsPerSecond per IP with the given burst
func NewRateLimiter(requestsPerSecond float64, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters:        make(map[string]*ipLimiter),
		stopCh:          make(chan struct{}),
		logger:          logger,
		now:             time.Now,
		rate:            rate.Limit(requestsPerSecond),
		cleanupInterval: 5 * time.Minute,
		burst:           burst,
		maxSize:         10000,
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes entries idle for longer than the cleanup interval
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cleanupInterval)
	removed := 0
	for ip, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}

	if removed > 100 {
		rl.logger.Debug("Rate limiter cleanup",
			zap.Int("removed", removed),
			zap.Int("remaining", len(rl.limiters)),
		)
	}
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if l, ok := rl.limiters[ip]; ok {
		l.lastAccess = now
		return l.limiter
	}

	if len(rl.limiters) >= rl.maxSize {
		rl.evictOldest()
	}

	l := &ipLimiter{
		limiter:    rate.NewLimiter(rl.rate, rl.burst),
		lastAccess: now,
	}
	rl.limiters[ip] = l
	return l.limiter
}

// evictOldest drops the least recently used entry. Callers hold mu.
func (rl *RateLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, l := range rl.limiters {
		if oldestIP == "" || l.lastAccess.Before(oldest) {
			oldestIP = ip
			oldest = l.lastAccess
		}
	}
	delete(rl.limiters, oldestIP)
}

// Middleware rejects requests over the limit with 429. It keys on RemoteAddr,
// so it belongs after chi's RealIP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r.RemoteAddr)
		if !rl.getLimiter(ip).Allow() {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","error_code":"RATE_LIMITED"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
