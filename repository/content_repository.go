// ABOUTME: This file is the idempotent persistence sink for accepted citations
// ABOUTME: ContentRecord and FeedEntry are written in one transaction, keyed by topic+canonical URL
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"citation-processor/domain"
	"citation-processor/metrics"
)

type contentRepository struct {
	db     DB
	logger *slog.Logger
}

// NewContentRepository creates the content sink.
func NewContentRepository(db DB, logger *slog.Logger) ContentRepository {
	return &contentRepository{db: db, logger: logger}
}

// Save persists the record and its pending FeedEntry atomically. A repeat of
// an already-saved (topic, canonical URL) pair returns the existing record's
// ID without writing anything, so retries after a lost acknowledgment are
// harmless.
func (r *contentRepository) Save(ctx context.Context, record *domain.ContentRecord) (string, error) {
	existing, err := r.FindByCanonicalURL(ctx, record.TopicID, record.CanonicalURL)
	if err != nil {
		return "", err
	}
	if existing != nil {
		metrics.ContentSaved.WithLabelValues("reused").Inc()
		r.logger.InfoContext(ctx, "content already saved, reusing record",
			"content_id", existing.ID,
			"topic_id", record.TopicID,
			"canonical_url", record.CanonicalURL)
		return existing.ID, nil
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to begin transaction: %v", domain.ErrSave, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO content_records (id, topic_id, canonical_url, title, text_content, priority_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.TopicID, record.CanonicalURL, record.Title,
		record.TextContent, record.PriorityScore, record.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("%w: failed to insert content record: %v", domain.ErrSave, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO feed_entries (id, content_id, status, attempts, created_at)
		VALUES ($1, $2, $3, 0, $4)`,
		uuid.New().String(), record.ID, domain.FeedPending, record.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("%w: failed to insert feed entry: %v", domain.ErrSave, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("%w: failed to commit: %v", domain.ErrSave, err)
	}
	metrics.ContentSaved.WithLabelValues("saved").Inc()

	r.logger.InfoContext(ctx, "content saved",
		"content_id", record.ID,
		"topic_id", record.TopicID,
		"canonical_url", record.CanonicalURL)

	return record.ID, nil
}

func (r *contentRepository) FindByCanonicalURL(ctx context.Context, topicID, canonicalURL string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, topic_id, canonical_url, title, text_content, priority_score, created_at
		FROM content_records
		WHERE topic_id = $1 AND canonical_url = $2`,
		topicID, canonicalURL).
		Scan(&rec.ID, &rec.TopicID, &rec.CanonicalURL, &rec.Title,
			&rec.TextContent, &rec.PriorityScore, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up content record: %w", err)
	}
	return &rec, nil
}
