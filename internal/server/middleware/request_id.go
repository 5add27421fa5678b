package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github/martinmaurice/quota/pkg/logger"
)

const (
	RequestIDHeader          = "X-Request-ID"
	RequestIDContextValueKey = "requestID"
)

// RequestIDMiddleware keeps the caller's X-Request-ID or mints one, and
// exposes it to handlers and to logger.FromContext.
func RequestIDMiddleware(c *gin.Context) {
	reqID := c.GetHeader(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	c.Set(RequestIDContextValueKey, reqID)
	c.Writer.Header().Set(RequestIDHeader, reqID)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

	c.Next()
}
