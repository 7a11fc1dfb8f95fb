package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/internal/handler"
)

// RateLimiter keeps a token bucket per client IP. Idle buckets are
// dropped after the cleanup interval.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rps      rate.Limit
	burst    int
	lifetime time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*clientBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		lifetime: 3 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	for range time.Tick(time.Minute) {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.lifetime)
		for ip, b := range rl.clients {
			if b.lastSeen.Before(cutoff) {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.bucketFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, &handler.Response{
				Success:    false,
				StatusCode: http.StatusTooManyRequests,
				Message:    "rate limit exceeded",
				Timestamp:  time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}
