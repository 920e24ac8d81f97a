package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arjunyel/svix-webhooks/internal/logger"
)

// RateLimiter is a token bucket. Tokens refill continuously at
// refillRate per second, capped at maxTokens.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewRateLimiter creates a bucket sized for the given requests per
// second. Non-positive rates fall back to 1000 rps.
func NewRateLimiter(rps int) *RateLimiter {
	if rps <= 0 {
		rps = 1000
	}
	return &RateLimiter{
		tokens:     float64(rps),
		maxTokens:  float64(rps),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	rl.lastRefill = now
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// clientEntry pairs a bucket with the time it last served a request so
// idle callers can be evicted.
type clientEntry struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// ClientRateLimiter keys buckets by caller identity and evicts entries
// that have gone idle.
type ClientRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*clientEntry
	rps     int
	idleTTL time.Duration
	stopCh  chan struct{}
}

// NewClientRateLimiter creates a per-caller rate limiter with a
// background eviction loop.
func NewClientRateLimiter(rps int) *ClientRateLimiter {
	crl := &ClientRateLimiter{
		entries: make(map[string]*clientEntry),
		rps:     rps,
		idleTTL: 5 * time.Minute,
		stopCh:  make(chan struct{}),
	}
	go crl.evictLoop()
	return crl
}

// Stop terminates the eviction loop.
func (crl *ClientRateLimiter) Stop() {
	close(crl.stopCh)
}

func (crl *ClientRateLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-crl.stopCh:
			return
		case now := <-ticker.C:
			crl.evictIdle(now)
		}
	}
}

func (crl *ClientRateLimiter) evictIdle(now time.Time) {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	for key, entry := range crl.entries {
		if now.Sub(entry.lastSeen) > crl.idleTTL {
			delete(crl.entries, key)
		}
	}
}

// GetLimiter returns the bucket for a caller, creating it on first use.
func (crl *ClientRateLimiter) GetLimiter(clientID string) *RateLimiter {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	entry, ok := crl.entries[clientID]
	if !ok {
		entry = &clientEntry{limiter: NewRateLimiter(crl.rps)}
		crl.entries[clientID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// clientKey identifies the caller. Dashboard tokens are limited per
// application; everything else falls back to the forwarded address or
// the connection's remote host.
func clientKey(r *http.Request) string {
	if claims := GetClaims(r.Context()); claims != nil && claims.AppID() != "" {
		return "app:" + claims.AppID()
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"Too Many Requests","message":"rate limit exceeded"}`))
}

// RateLimit returns a middleware enforcing one bucket shared by all
// callers.
func RateLimit(rps int) func(next http.Handler) http.Handler {
	limiter := NewRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("rate limit exceeded")
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientRateLimit returns a middleware enforcing a bucket per caller.
func ClientRateLimit(rps int) func(next http.Handler) http.Handler {
	limiter := NewClientRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.GetLimiter(key).Allow() {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client", key).
					Msg("client rate limit exceeded")
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
