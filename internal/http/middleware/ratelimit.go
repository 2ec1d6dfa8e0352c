// README: Per-caller rate limiting for the telemetry intake.
package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit allows rps sustained requests per caller with the given burst.
// Callers are keyed by UID when authenticated, client IP otherwise.
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rps, burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
