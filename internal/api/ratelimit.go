package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies one global token bucket of rps requests per
// second.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		c.Next()
	}
}
