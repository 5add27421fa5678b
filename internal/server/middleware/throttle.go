package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ThrottleMiddleware caps the requests this instance forwards to the counter
// store, independently of any per-subject quota.
func ThrottleMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow() {
			c.Next()
			return
		}

		slog.Warn("request throttled", "path", c.FullPath(), "client_ip", c.ClientIP())
		AbortWithRetryAfter(c, 1, "server is busy, slow down")
	}
}
