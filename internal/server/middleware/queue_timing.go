package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/pkg/logger"
)

const ReqArrivalTimeContextValueKey = "reqArrivalTime"

// QueueTimeMiddleware stamps the arrival time and logs the request once the
// chain has run.
func QueueTimeMiddleware(c *gin.Context) {
	arrival := time.Now()
	c.Set(ReqArrivalTimeContextValueKey, arrival)

	c.Next()

	logger.FromContext(c.Request.Context()).Info("request served",
		"method", c.Request.Method,
		"route", c.FullPath(),
		"status", c.Writer.Status(),
		"duration_us", time.Since(arrival).Microseconds(),
	)
}
