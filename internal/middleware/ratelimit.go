package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// IPRateLimit throttles a route per client IP with a token bucket. Idle
// limiters are evicted after ten minutes.
func IPRateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiters := expirable.NewLRU[string, *rate.Limiter](10000, nil, 10*time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter, ok := limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters.Add(ip, limiter)
		}
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
