package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/logger"
)

type healthHandlerServicer interface {
	Ping(ctx context.Context) error
}

func HealthHandler(s healthHandlerServicer) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		log := logger.FromContext(ctx.Request.Context()).With("handler", "health")
		reqArrivalTime, exists := ctx.Get(middleware.ReqArrivalTimeContextValueKey)
		if exists {
			queueTime := time.Since(reqArrivalTime.(time.Time)).Microseconds()
			log.Debug("Queue Time (µs)", "queueTime", queueTime)
		}

		if err := s.Ping(ctx.Request.Context()); err != nil {
			log.Error("store ping failed", "error", err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"success": false})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"success": true})
	}
}
