// In-memory token-bucket rate limiting, keyed per caller.
//
// Buckets live in a mutex-guarded map and idle entries are evicted
// opportunistically during lookups, so memory stays bounded without a
// background goroutine. The limiter is process-local; a horizontally
// scaled deployment would need a shared store to enforce a global limit.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the bucket identity it is limited under.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated Telegram account when the
// auth middleware stored one ("userID" context key), and by client IP for
// anonymous traffic. Prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, found := c.Get("userID"); found {
			if s, isStr := v.(string); isStr && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds per-key token buckets. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	bypassFn func(*gin.Context) bool

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

// gcEvery is the lookup count between idle-bucket sweeps.
const gcEvery = 5000

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst capacity (coerced to at least 1). Idle buckets are
// dropped after ten minutes without traffic.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Bypass installs a predicate exempting matching requests, letting
// configured admins moderate without burning tokens. Returns the limiter
// for chaining.
func (rl *RateLimiter) Bypass(fn func(*gin.Context) bool) *RateLimiter {
	rl.bypassFn = fn
	return rl
}

// bucketFor fetches or creates the limiter for key. The idle sweep runs
// before the fetch so a stale bucket is evicted even when it is the one
// being requested.
func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEvery {
		rl.lookups = 0
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
	}

	if v, found := rl.visitors[key]; found {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the enforcing middleware. Rejected requests get a 429
// with the standard envelope fields and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.bypassFn != nil && rl.bypassFn(c) {
			c.Next()
			return
		}
		if rl.bucketFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
