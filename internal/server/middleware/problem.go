package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const ProblemContentType = "application/problem+json"

// ProblemDetails is an RFC 9457 error body.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func problemCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad-request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not-found"
	case http.StatusTooManyRequests:
		return "too-many-requests"
	case http.StatusServiceUnavailable:
		return "service-unavailable"
	default:
		return "internal-server-error"
	}
}

func newProblem(c *gin.Context, status int, detail string) ProblemDetails {
	return ProblemDetails{
		Type:     "/problems/" + problemCode(status),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request.URL.RequestURI(),
	}
}

func AbortWithProblem(c *gin.Context, status int, detail string) {
	c.Header("Content-Type", ProblemContentType)
	c.AbortWithStatusJSON(status, newProblem(c, status, detail))
}

// AbortWithRetryAfter answers 429 with a Retry-After header equal to the body's
// retry_after.
func AbortWithRetryAfter(c *gin.Context, retryAfterSeconds int, detail string) {
	problem := newProblem(c, http.StatusTooManyRequests, detail)
	problem.RetryAfter = retryAfterSeconds

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.Header("Content-Type", ProblemContentType)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}
