package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SubjectResolver returns the subject authenticated by apiKey.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, apiKey string) (subjectID int, ok bool)
}

// StaticKeys maps API keys to subject ids, usually loaded from APP_API_KEYS.
type StaticKeys map[string]int

func (k StaticKeys) ResolveSubject(_ context.Context, apiKey string) (int, bool) {
	subjectID, ok := k[apiKey]
	if !ok || subjectID <= 0 {
		return 0, false
	}
	return subjectID, true
}

const (
	apiKeyHeader                   = "X-API-KEY"
	adminKeyHeader                 = "X-ADMIN-KEY"
	SubjectContextKey              = "authenticatedSubjectID"
	IsAuthenticatedContextValueKey = "isUserAuthenticated"
)

// AuthenticationMiddleware marks the request as authenticated when its API key
// resolves to a subject. Anonymous requests go through; routes that need a
// subject reject them.
func AuthenticationMiddleware(resolver SubjectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(apiKeyHeader)
		if apiKey == "" || resolver == nil {
			c.Next()
			return
		}

		if subjectID, ok := resolver.ResolveSubject(c.Request.Context(), apiKey); ok {
			c.Set(SubjectContextKey, subjectID)
			c.Set(IsAuthenticatedContextValueKey, true)
		}

		c.Next()
	}
}

// AdminMiddleware guards operator routes. With an empty adminKey every request
// is rejected.
func AdminMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(adminKeyHeader)
		if adminKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(adminKey)) != 1 {
			AbortWithProblem(c, http.StatusUnauthorized, "")
			return
		}
		c.Next()
	}
}
