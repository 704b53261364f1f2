package middleware

import (
	"sync"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/cache"
	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles a route per caller. A shared Redis bucket is used
// when configured so limits hold across instances; the in-process limiter
// covers deployments without Redis and Redis outages.
type RateLimiter struct {
	redis    *cache.RedisClient
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewRateLimiter allows perMinute requests per caller with the given burst.
func NewRateLimiter(redis *cache.RedisClient, perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		redis:    redis,
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (rl *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Cleanup drops limiters idle for longer than the TTL.
func (rl *RateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Allow reports whether the caller identified by key may proceed.
func (rl *RateLimiter) Allow(c *gin.Context, action, key string) bool {
	if rl.redis != nil {
		ok, err := rl.redis.AllowAction(c.Request.Context(), action, key, float64(rl.rate), rl.burst)
		if err == nil {
			if !ok {
				metrics.RateLimitedTotal.WithLabelValues("redis").Inc()
			}
			return ok
		}
		log.Warn().Err(err).Str("action", action).Msg("redis rate limit unavailable, using local limiter")
	}

	if !rl.getLimiter(action+":"+key, time.Now()).Allow() {
		metrics.RateLimitedTotal.WithLabelValues("local").Inc()
		return false
	}
	return true
}

// RateLimitMiddleware limits requests per user, or per client IP for
// anonymous callers.
func RateLimitMiddleware(rl *RateLimiter, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if actor := ActorFrom(c); actor.Authenticated() {
			key = "user:" + actor.UserID.String()
		}

		if !rl.Allow(c, action, key) {
			abortWithError(c, apperrors.New(apperrors.CodeRateLimited, "Rate limit exceeded"))
			return
		}

		c.Next()
	}
}
