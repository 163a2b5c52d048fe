package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/cloudbrowser/models"
	"github.com/use-agent/cloudbrowser/pipeline"
)

// Fetch returns a handler for POST /api/v1/fetch. It runs one page fetch
// through the pooled browser sessions via the pipeline extension.
func Fetch(ext *pipeline.Extension) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "invalid request body: " + err.Error(),
				},
			})
			return
		}

		reqID := uuid.NewString()
		start := time.Now()

		result, err := ext.Fetch(c.Request.Context(), &req)
		if err != nil {
			code := models.CodeOf(err)
			slog.Warn("fetch request failed",
				"request_id", reqID, "url", req.URL, "code", code,
				"elapsed", time.Since(start).Round(time.Millisecond))
			c.JSON(statusFor(code), models.FetchResponse{
				Success:   false,
				Retryable: models.IsRetryable(err),
				Error:     errDetail(err),
			})
			return
		}

		slog.Info("fetch request served",
			"request_id", reqID, "url", req.URL, "status", result.StatusCode,
			"elapsed", time.Since(start).Round(time.Millisecond))
		c.JSON(http.StatusOK, models.FetchResponse{
			Success:    true,
			StatusCode: result.StatusCode,
			FinalURL:   result.FinalURL,
			Title:      result.Title,
			HTML:       result.HTML,
		})
	}
}

// statusFor maps internal error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeShutDown:
		return http.StatusServiceUnavailable
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case models.ErrCodeSessionBroken, models.ErrCodeFetch, models.ErrCodeProvisioning:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errDetail(err error) *models.ErrorDetail {
	var pe *models.PoolError
	if errors.As(err, &pe) {
		return pe.ToDetail()
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}
