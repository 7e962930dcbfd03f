package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"citation-processor/config"
	appmiddleware "citation-processor/middleware"
)

// NewHTTPServer creates and configures the Echo HTTP server.
func NewHTTPServer(deps *Dependencies, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.HTTPErrorHandler = appmiddleware.CustomHTTPErrorHandler(deps.Logger)

	if cfg.Telemetry.Enabled {
		e.Use(otelecho.Middleware(cfg.Telemetry.ServiceName))
	}

	e.Use(appmiddleware.RequestIDMiddleware())
	e.Use(appmiddleware.LoggingMiddleware(deps.Logger))
	e.Use(middleware.Recover())

	v1 := e.Group("/v1")
	v1.POST("/topics/:topic_id/candidates", deps.RunHandler.HandleEnqueueCandidates)
	v1.POST("/topics/:topic_id/runs", deps.RunHandler.HandleStartRun)
	v1.POST("/topics/:topic_id/reprocess", deps.RunHandler.HandleReprocessDenied)
	v1.GET("/runs/:run_id", deps.RunHandler.HandleGetRun)
	v1.DELETE("/runs/:run_id", deps.RunHandler.HandleStopRun)
	v1.GET("/health", deps.HealthHandler.HandleHealth)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
