package middleware

import (
	"net/http"

	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/gin-gonic/gin"
)

// NewHTTPRateLimitPerIP limits requests per client IP.
func NewHTTPRateLimitPerIP(visitors *ratelimit.Visitors) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !visitors.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests from this IP, please try again later.",
			})
			return
		}
		c.Next()
	}
}
