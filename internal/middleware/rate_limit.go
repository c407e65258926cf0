package middleware

import (
	"net/http"
	"sync"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/handlers"
	"transfer-backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter token bucket per authenticated user, or per client IP before auth
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter from config
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cl, ok := r.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[key] = cl
	}
	cl.lastSeen = now

	// opportunistic sweep of idle clients
	if len(r.clients) > 1024 {
		for k, v := range r.clients {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(r.clients, k)
			}
		}
	}
	return cl.limiter
}

// Limit aborts with 429 when the caller's bucket is empty
func (r *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(handlers.ContextUserAddress)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !r.get(key).Allow() {
			metrics.RateLimitedRequests.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests",
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
