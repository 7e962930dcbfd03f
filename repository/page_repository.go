package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"citation-processor/domain"
)

type pageRepository struct {
	db     DB
	logger *slog.Logger
}

// NewPageRepository creates a monitored page repository.
func NewPageRepository(db DB, logger *slog.Logger) PageRepository {
	return &pageRepository{db: db, logger: logger}
}

func (r *pageRepository) Create(ctx context.Context, page *domain.MonitoredPage) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO monitored_pages (id, topic_id, source_url, status,
			content_scanned, citations_extracted, citation_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		page.ID, page.TopicID, page.SourceURL, page.Status,
		page.ContentScanned, page.CitationsExtracted, page.CitationCount,
		page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create monitored page: %w", err)
	}

	r.logger.InfoContext(ctx, "monitored page created",
		"page_id", page.ID,
		"topic_id", page.TopicID,
		"source_url", page.SourceURL)

	return nil
}

func (r *pageRepository) FindByID(ctx context.Context, id string) (*domain.MonitoredPage, error) {
	var p domain.MonitoredPage
	err := r.db.QueryRow(ctx, `
		SELECT id, topic_id, source_url, status, content_scanned,
		       citations_extracted, citation_count, created_at, updated_at
		FROM monitored_pages WHERE id = $1`, id).
		Scan(&p.ID, &p.TopicID, &p.SourceURL, &p.Status, &p.ContentScanned,
			&p.CitationsExtracted, &p.CitationCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find page %s: %w", id, err)
	}
	return &p, nil
}

func (r *pageRepository) FindBySourceURL(ctx context.Context, topicID, sourceURL string) (*domain.MonitoredPage, error) {
	var p domain.MonitoredPage
	err := r.db.QueryRow(ctx, `
		SELECT id, topic_id, source_url, status, content_scanned,
		       citations_extracted, citation_count, created_at, updated_at
		FROM monitored_pages WHERE topic_id = $1 AND source_url = $2`, topicID, sourceURL).
		Scan(&p.ID, &p.TopicID, &p.SourceURL, &p.Status, &p.ContentScanned,
			&p.CitationsExtracted, &p.CitationCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find page for %s: %w", sourceURL, err)
	}
	return &p, nil
}

func (r *pageRepository) UpdateStatus(ctx context.Context, id string, status domain.PageStatus) error {
	var allowedFrom []string
	switch status {
	case domain.PageScanning:
		allowedFrom = []string{string(domain.PagePending), string(domain.PageError)}
	case domain.PageCompleted:
		allowedFrom = []string{string(domain.PageScanning)}
	case domain.PageError:
		allowedFrom = []string{string(domain.PagePending), string(domain.PageScanning)}
	default:
		return fmt.Errorf("%w: page -> %s", domain.ErrIllegalTransition, status)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE monitored_pages
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`,
		status, id, allowedFrom)
	if err != nil {
		return fmt.Errorf("failed to update page status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: page -> %s for page %s", domain.ErrIllegalTransition, status, id)
	}
	return nil
}

func (r *pageRepository) MarkCitationsExtracted(ctx context.Context, id string, citationCount int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE monitored_pages
		SET citations_extracted = TRUE, content_scanned = TRUE,
		    citation_count = $1, updated_at = NOW()
		WHERE id = $2`, citationCount, id)
	if err != nil {
		return fmt.Errorf("failed to mark citations extracted: %w", err)
	}
	return nil
}

// CompleteIfDone moves a scanning page to completed when no child citation
// remains outside a terminal scan status. The completion predicate lives in
// the statement itself so two workers cannot both observe "done" and race.
func (r *pageRepository) CompleteIfDone(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE monitored_pages
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1
		  AND status = 'scanning'
		  AND NOT EXISTS (
		      SELECT 1 FROM citations
		      WHERE page_id = $1
		        AND scan_status NOT IN ('scanned', 'scanned_denied')
		  )`, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete page %s: %w", id, err)
	}

	completed := tag.RowsAffected() > 0
	if completed {
		r.logger.InfoContext(ctx, "monitored page completed", "page_id", id)
	}
	return completed, nil
}
