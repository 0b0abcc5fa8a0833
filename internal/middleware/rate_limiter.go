package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/reelnotes/backend/internal/config"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// IPRateLimiter tracks request rates per key (typically scope plus client IP).
// Idle keys are forgotten after the configured TTL.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewIPRateLimiter allows up to cfg.Requests events per cfg.Window for each
// key, with cfg.Burst extra capacity.
func NewIPRateLimiter(cfg config.RateLimitConfig) *IPRateLimiter {
	requests, window, burst, ttl := cfg.Requests, cfg.Window, cfg.Burst, cfg.TTL
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes one token for key.
func (l *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	v := l.visitorLocked(key, now)
	l.gcLocked(now)
	allowed := v.limiter.AllowN(now, 1)
	l.mu.Unlock()

	return allowed
}

// Tracked reports how many keys currently hold limiter state.
func (l *IPRateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// WithNowFunc overrides the time source.
func (l *IPRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *IPRateLimiter) visitorLocked(key string, now time.Time) *visitor {
	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v
	}

	v := &visitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.visitors[key] = v
	return v
}

func (l *IPRateLimiter) gcLocked(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
}
