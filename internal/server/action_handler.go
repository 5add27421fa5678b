package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/enum"
)

// ActionAcceptedHandler acknowledges an action that made it through the
// quota. The verification itself happens downstream.
func ActionAcceptedHandler(action enum.Action) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusAccepted, gin.H{
			"action":     action.String(),
			"subject_id": ctx.GetInt(middleware.SubjectContextKey),
		})
	}
}
