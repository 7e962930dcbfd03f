// Package scorer calls the external relevance scoring API. Scoring sits on
// the critical path of finalization, so unavailability is surfaced as a
// typed error the caller can retry rather than a silent default verdict.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"citation-processor/config"
	"citation-processor/domain"
)

// Verdict is the scoring API response for one citation.
type Verdict struct {
	PriorityScore        float64 `json:"priority_score"`
	IsRelevant           bool    `json:"is_relevant"`
	IsSubstantiveArticle bool    `json:"is_substantive_article"`
}

// scoreRequest is the outbound payload.
type scoreRequest struct {
	Text         string `json:"text"`
	Title        string `json:"title"`
	TopicContext string `json:"topic_context"`
}

// Scorer is an HTTP client for the relevance scoring service.
type Scorer struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a scorer client from config.
func New(cfg config.ScorerConfig, logger *slog.Logger) *Scorer {
	return &Scorer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Score submits extracted citation text for relevance evaluation.
// Connection failures and 5xx responses map to domain.ErrScoringUnavailable
// so the citation fails retryably instead of being mis-denied.
func (s *Scorer) Score(ctx context.Context, text, title, topicContext string) (*Verdict, error) {
	payload, err := json.Marshal(scoreRequest{
		Text:         text,
		Title:        title,
		TopicContext: topicContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/score", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("scorer unreachable", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrScoringUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		s.logger.Warn("scorer returned server error", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", domain.ErrScoringUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer rejected request: status %d: %s", resp.StatusCode, string(body))
	}

	var verdict Verdict
	if err := json.Unmarshal(body, &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode scorer response: %w", err)
	}

	s.logger.Debug("citation scored",
		"priority_score", verdict.PriorityScore,
		"is_relevant", verdict.IsRelevant,
		"is_substantive_article", verdict.IsSubstantiveArticle,
		"duration_ms", time.Since(start).Milliseconds())

	return &verdict, nil
}
