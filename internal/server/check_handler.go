package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/rate_limiter"
)

type (
	checkHandlerServicer interface {
		CheckLimit(ctx context.Context, action enum.Action, subjectID int) (rate_limiter.Result, error)
	}
	checkRequestDTO struct {
		Action    string `json:"action" binding:"required"`
		SubjectID int    `json:"subject_id" binding:"required,gt=0"`
	}
	checkResponseDTO struct {
		Allowed    bool  `json:"allowed"`
		Count      int64 `json:"count"`
		Limit      int64 `json:"limit"`
		Remaining  int64 `json:"remaining"`
		RetryAfter int   `json:"retry_after"`
	}
)

func CheckHandler(s checkHandlerServicer) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var reqDTO checkRequestDTO
		if err := ctx.ShouldBindJSON(&reqDTO); err != nil {
			middleware.AbortWithProblem(ctx, http.StatusBadRequest, err.Error())
			return
		}

		action, ok := enum.ParseAction(reqDTO.Action)
		if !ok {
			middleware.AbortWithProblem(ctx, http.StatusBadRequest, fmt.Sprintf("unknown action %q", reqDTO.Action))
			return
		}

		res, err := s.CheckLimit(ctx.Request.Context(), action, reqDTO.SubjectID)
		if err != nil {
			middleware.RespondLimitError(ctx, err)
			return
		}

		middleware.SetRateLimitHeaders(ctx, res)
		if !res.Allowed {
			middleware.AbortWithRetryAfter(ctx, res.RetryAfterSeconds, fmt.Sprintf("Too many requests. Try again in %d seconds.", res.RetryAfterSeconds))
			return
		}

		ctx.JSON(http.StatusOK, checkResponseDTO{
			Allowed:    res.Allowed,
			Count:      res.Count,
			Limit:      res.Limit,
			Remaining:  max(res.Limit-res.Count, 0),
			RetryAfter: res.RetryAfterSeconds,
		})
	}
}
