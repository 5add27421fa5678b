package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/rate_limiter"
)

type (
	statusHandlerServicer interface {
		Status(ctx context.Context, action enum.Action, subjectID int) (rate_limiter.Status, error)
	}
	resetHandlerServicer interface {
		Reset(ctx context.Context, action enum.Action, subjectID int) error
	}
)

// parseTarget reads the :action and :id path params. It aborts the request and
// returns false when either is invalid.
func parseTarget(ctx *gin.Context) (enum.Action, int, bool) {
	action, ok := enum.ParseAction(ctx.Param("action"))
	if !ok {
		middleware.AbortWithProblem(ctx, http.StatusBadRequest, "unknown action")
		return 0, 0, false
	}

	subjectID, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || subjectID <= 0 {
		middleware.AbortWithProblem(ctx, http.StatusBadRequest, "id must be a positive integer")
		return 0, 0, false
	}

	return action, subjectID, true
}

func respondStoreError(ctx *gin.Context, err error) {
	if errors.Is(err, rate_limiter.ErrUnsupported) {
		middleware.AbortWithProblem(ctx, http.StatusNotImplemented, err.Error())
		return
	}
	middleware.RespondLimitError(ctx, err)
}

func GetStatusHandler(s statusHandlerServicer) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		action, subjectID, ok := parseTarget(ctx)
		if !ok {
			return
		}

		status, err := s.Status(ctx.Request.Context(), action, subjectID)
		if err != nil {
			respondStoreError(ctx, err)
			return
		}

		ctx.JSON(http.StatusOK, status)
	}
}

func ResetHandler(s resetHandlerServicer) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		action, subjectID, ok := parseTarget(ctx)
		if !ok {
			return
		}

		if err := s.Reset(ctx.Request.Context(), action, subjectID); err != nil {
			respondStoreError(ctx, err)
			return
		}

		ctx.Status(http.StatusNoContent)
	}
}
