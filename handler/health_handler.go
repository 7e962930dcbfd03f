package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports service liveness and dependency reachability.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. db may be nil in setups without
// a database (tests, dry runs).
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// HandleHealth handles GET /v1/health.
func (h *HealthHandler) HandleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("database health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database unreachable",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
