// ABOUTME: This file handles the run lifecycle and candidate intake API
// ABOUTME: Enqueue, start/stop runs, run stats, denied-citation reprocessing
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"citation-processor/domain"
	"citation-processor/frontier"
	"citation-processor/orchestrator"
)

// CandidateRequest is one frontier entry in an enqueue call.
type CandidateRequest struct {
	URL           string  `json:"url"`
	SourceType    string  `json:"source_type"`
	PriorityScore float64 `json:"priority_score"`
	Contested     bool    `json:"contested"`
}

// EnqueueRequest is the body for POST /v1/topics/:topic_id/candidates.
type EnqueueRequest struct {
	RunID      string             `json:"run_id"`
	Candidates []CandidateRequest `json:"candidates"`
}

// StartRunRequest optionally names the run to start.
type StartRunRequest struct {
	RunID string `json:"run_id"`
}

// RunHandler exposes the run lifecycle over HTTP.
type RunHandler struct {
	manager     *orchestrator.Manager
	frontier    frontier.Frontier
	reprocessor Reprocessor
	logger      *slog.Logger

	// baseCtx outlives individual requests; runs started from a request
	// must not die with it.
	baseCtx context.Context
}

// NewRunHandler creates the run API handler.
func NewRunHandler(
	baseCtx context.Context,
	manager *orchestrator.Manager,
	fr frontier.Frontier,
	reprocessor Reprocessor,
	logger *slog.Logger,
) *RunHandler {
	return &RunHandler{
		manager:     manager,
		frontier:    fr,
		reprocessor: reprocessor,
		logger:      logger,
		baseCtx:     baseCtx,
	}
}

// HandleEnqueueCandidates handles POST /v1/topics/:topic_id/candidates.
func (h *RunHandler) HandleEnqueueCandidates(c echo.Context) error {
	ctx := c.Request().Context()
	topicID := c.Param("topic_id")

	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.RunID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run_id cannot be empty")
	}
	if len(req.Candidates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "candidates cannot be empty")
	}

	now := time.Now()
	candidates := make([]domain.Candidate, 0, len(req.Candidates))
	for _, cr := range req.Candidates {
		if _, err := domain.CanonicalizeURL(cr.URL); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid candidate URL: "+cr.URL)
		}
		sourceType := domain.SourceType(cr.SourceType)
		if sourceType == "" {
			sourceType = domain.SourceTypeSeed
		}
		candidates = append(candidates, domain.Candidate{
			URL:           cr.URL,
			Host:          domain.HostOf(cr.URL),
			SourceType:    sourceType,
			PriorityScore: cr.PriorityScore,
			TopicID:       topicID,
			Contested:     cr.Contested,
			EnqueuedAt:    now,
		})
	}

	if err := h.frontier.Enqueue(ctx, topicID, req.RunID, candidates); err != nil {
		return err
	}

	h.logger.Info("candidates enqueued",
		"topic_id", topicID,
		"run_id", req.RunID,
		"count", len(candidates))

	return c.JSON(http.StatusAccepted, map[string]any{
		"topic_id": topicID,
		"run_id":   req.RunID,
		"enqueued": len(candidates),
	})
}

// HandleStartRun handles POST /v1/topics/:topic_id/runs.
func (h *RunHandler) HandleStartRun(c echo.Context) error {
	topicID := c.Param("topic_id")

	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if _, err := h.manager.StartRun(h.baseCtx, topicID, runID); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"topic_id": topicID,
		"run_id":   runID,
		"status":   "started",
	})
}

// HandleStopRun handles DELETE /v1/runs/:run_id.
func (h *RunHandler) HandleStopRun(c echo.Context) error {
	if err := h.manager.StopRun(c.Param("run_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetRun handles GET /v1/runs/:run_id.
func (h *RunHandler) HandleGetRun(c echo.Context) error {
	snap, err := h.manager.Snapshot(c.Param("run_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleReprocessDenied handles POST /v1/topics/:topic_id/reprocess.
func (h *RunHandler) HandleReprocessDenied(c echo.Context) error {
	ctx := c.Request().Context()
	topicID := c.Param("topic_id")

	reset, err := h.reprocessor.ReprocessDenied(ctx, topicID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"topic_id": topicID,
		"reset":    reset,
	})
}
