package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL      = 15 * time.Minute
	defaultCleanupEvery = 2 * time.Minute
)

// IPLimiter keeps one token bucket per client IP and forgets idle clients.
type IPLimiter struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	nowF         func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LimiterOption configures an IPLimiter.
type LimiterOption func(*IPLimiter)

// WithIdleTTL sets how long an unseen client keeps its bucket.
func WithIdleTTL(d time.Duration) LimiterOption {
	return func(l *IPLimiter) { l.idleTTL = d }
}

// WithCleanupEvery sets the janitor interval.
func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(l *IPLimiter) { l.cleanupEvery = d }
}

// NewIPLimiter returns a limiter allowing rps sustained requests per client with the given burst.
// rps <= 0 disables limiting.
func NewIPLimiter(rps float64, burst int, opts ...LimiterOption) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &IPLimiter{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      defaultIdleTTL,
		cleanupEvery: defaultCleanupEvery,
		nowF:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key may make a request now and, if not, how long until it may.
func (l *IPLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.rps <= 0 {
		return true, 0
	}
	now := l.nowF()
	lim := l.get(key, now)
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *IPLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops buckets of clients not seen within the idle TTL.
func (l *IPLimiter) Cleanup() {
	cutoff := l.nowF().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// Len returns the number of tracked clients.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run cleans up idle clients periodically until ctx is done.
func (l *IPLimiter) Run(ctx context.Context) {
	if l == nil || l.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(l.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Cleanup()
		}
	}
}

// RateLimit rejects requests over the client's budget with 429 and a Retry-After header.
func RateLimit(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow(c.ClientIP())
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
