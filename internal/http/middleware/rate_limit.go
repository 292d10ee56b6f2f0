package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit applies a token bucket per client IP. rps <= 0 disables it.
func RateLimit(rps float64) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := int(math.Ceil(rps))
	var (
		mu       sync.Mutex
		limiters = map[string]*clientLimiter{}
		swept    = time.Now()
	)

	return func(c *gin.Context) {
		now := time.Now()
		ip := c.ClientIP()

		mu.Lock()
		if now.Sub(swept) > time.Minute {
			for k, l := range limiters {
				if now.Sub(l.seen) > 3*time.Minute {
					delete(limiters, k)
				}
			}
			swept = now
		}
		l, ok := limiters[ip]
		if !ok {
			l = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[ip] = l
		}
		l.seen = now
		allowed := l.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}
