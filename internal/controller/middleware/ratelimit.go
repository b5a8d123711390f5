package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"layerplane/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	limiters sync.Map // client IP -> *cachedLimiter

	sweepMu   sync.Mutex
	nextSweep time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithTTL sets how long an idle client's limiter is kept.
func WithTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given
// burst for each client. perSecond <= 0 means unlimited.
func NewRateLimiter(perSecond float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		ttl:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.get(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Too Many Requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

func (c *cachedLimiter) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.Unix(0, c.lastSeen.Load())) >= ttl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()
	rl.maybeSweep(now)

	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if !cached.expired(now, rl.ttl) {
			cached.lastSeen.Store(now.UnixNano())
			return cached.limiter
		}
	}

	cached := &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	cached.lastSeen.Store(now.UnixNano())
	rl.limiters.Store(key, cached)
	return cached.limiter
}

// maybeSweep drops idle clients at most once per ttl. Callers that find a
// sweep already running skip it.
func (rl *RateLimiter) maybeSweep(now time.Time) {
	if !rl.sweepMu.TryLock() {
		return
	}
	defer rl.sweepMu.Unlock()
	if now.Before(rl.nextSweep) {
		return
	}
	rl.nextSweep = now.Add(rl.ttl)

	rl.limiters.Range(func(key, v any) bool {
		if v.(*cachedLimiter).expired(now, rl.ttl) {
			rl.limiters.CompareAndDelete(key, v)
		}
		return true
	})
}

// size reports the number of tracked clients.
func (rl *RateLimiter) size() int {
	n := 0
	rl.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// clientIP returns the remote address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Detail: message})
}
