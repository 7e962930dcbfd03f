// ABOUTME: This file provides HTTP request/response logging middleware
// ABOUTME: Structured access logs with timing and request context
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"citation-processor/logger"
)

func LoggingMiddleware(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			start := time.Now()

			ctx := logger.WithOperation(req.Context(), req.Method+" "+req.URL.Path)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logger.FromContext(ctx, log).Info("request completed",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"response_size", res.Size,
				"ip_address", c.RealIP(),
				"duration_ms", time.Since(start).Milliseconds())

			return err
		}
	}
}
