package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter is a token bucket rate limiter keyed by caller. The auth endpoints
// use it keyed on client IP to slow credential stuffing.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter allows limit requests per window per key.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
	}
	go l.sweep()
	return l
}

// Allow consumes one token for the key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit)}
		l.buckets[key] = b
	} else {
		refill := now.Sub(b.lastSeen).Seconds() / l.window.Seconds() * float64(l.limit)
		b.tokens += refill
		if b.tokens > float64(l.limit) {
			b.tokens = float64(l.limit)
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle for several windows.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(10 * l.window)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * l.window)
		l.mu.Lock()
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects callers that exhausted their budget with 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
