package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/logger"
	"github/martinmaurice/quota/pkg/rate_limiter"
)

type RateLimitMiddlewareServicer interface {
	CheckLimit(ctx context.Context, action enum.Action, subjectID int) (rate_limiter.Result, error)
}

func SetRateLimitHeaders(c *gin.Context, res rate_limiter.Result) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	headers.Set("X-RateLimit-Remaining", strconv.FormatInt(max(res.Limit-res.Count, 0), 10))
}

// RespondLimitError maps a CheckLimit error to a problem response. Store
// failures fail closed.
func RespondLimitError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())

	switch {
	case errors.Is(err, rate_limiter.ErrUnknownAction):
		AbortWithProblem(c, http.StatusBadRequest, "unknown action")
	case errors.Is(err, rate_limiter.ErrStoreUnavailable):
		log.Error("rate limit store unavailable", "error", err)
		AbortWithProblem(c, http.StatusServiceUnavailable, "rate limiter is unavailable, try again later")
	default:
		log.Error("rate limit check failed", "error", err)
		AbortWithProblem(c, http.StatusInternalServerError, "")
	}
}

func RateLimitActionMiddleware(servicer RateLimitMiddlewareServicer, action enum.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		isAuth := c.GetBool(IsAuthenticatedContextValueKey)
		subjectID := c.GetInt(SubjectContextKey)
		if !isAuth || subjectID <= 0 {
			AbortWithProblem(c, http.StatusUnauthorized, "")
			return
		}

		res, err := servicer.CheckLimit(c.Request.Context(), action, subjectID)
		if err != nil {
			RespondLimitError(c, err)
			return
		}

		SetRateLimitHeaders(c, res)
		log := logger.FromContext(c.Request.Context())

		if res.Allowed {
			log.Info("Request allowed", "action", action.String(), "subject_id", subjectID)
			c.Next()
			return
		}

		log.Info("Request not allowed", "action", action.String(), "subject_id", subjectID, "retry_after", res.RetryAfterSeconds)
		AbortWithRetryAfter(c, res.RetryAfterSeconds, fmt.Sprintf("Too many requests. Try again in %d seconds.", res.RetryAfterSeconds))
	}
}
