// ABOUTME: Centralized error handling middleware for Echo
// ABOUTME: Maps domain sentinels to HTTP statuses and hides internal details
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"citation-processor/domain"
	"citation-processor/logger"
	"citation-processor/orchestrator"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the client-safe error fields.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// CustomHTTPErrorHandler normalizes every handler error into a consistent
// JSON response. Internal details are logged, never returned.
func CustomHTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()
		contextLog := logger.FromContext(ctx, log)

		status, response := classify(err)

		if status >= http.StatusInternalServerError {
			contextLog.Error("request failed",
				"path", c.Request().URL.Path,
				"status", status,
				"error", err)
		} else {
			contextLog.Warn("request rejected",
				"path", c.Request().URL.Path,
				"status", status,
				"error", err)
		}

		if jsonErr := c.JSON(status, response); jsonErr != nil {
			contextLog.Error("failed to send error response", "error", jsonErr)
		}
	}
}

func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, domain.ErrPageNotFound),
		errors.Is(err, domain.ErrCitationNotFound),
		errors.Is(err, orchestrator.ErrRunNotFound):
		return http.StatusNotFound, ErrorResponse{Error: ErrorDetail{
			Code:    "NOT_FOUND",
			Message: err.Error(),
		}}

	case errors.Is(err, orchestrator.ErrRunActive):
		return http.StatusConflict, ErrorResponse{Error: ErrorDetail{
			Code:    "RUN_ACTIVE",
			Message: err.Error(),
		}}

	case errors.Is(err, domain.ErrNotAbsoluteURL):
		return http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Code:    "INVALID_URL",
			Message: err.Error(),
		}}

	case errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrScoringUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{
			Code:      "UPSTREAM_UNAVAILABLE",
			Message:   "An upstream dependency is unavailable. Please retry later.",
			Retryable: true,
		}}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := "An error occurred"
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		if httpErr.Code >= http.StatusInternalServerError {
			msg = "An unexpected error occurred. Please try again later."
		}
		return httpErr.Code, ErrorResponse{Error: ErrorDetail{
			Code:    "HTTP_ERROR",
			Message: msg,
		}}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred. Please try again later.",
	}}
}
