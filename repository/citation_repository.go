// ABOUTME: This file persists citations and their verify/scan lifecycle in PostgreSQL
// ABOUTME: Status updates carry their legality predicate into the WHERE clause
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
)

const citationColumns = `id, page_id, url, canonical_url, title, verification_status,
	scan_status, relevance_decision, ai_priority_score, content_text,
	saved_content_id, last_scanned_at, last_verified_at, error_message, position, created_at`

type citationRepository struct {
	db     DB
	logger *slog.Logger
}

// NewCitationRepository creates a citation repository.
func NewCitationRepository(db DB, logger *slog.Logger) CitationRepository {
	return &citationRepository{db: db, logger: logger}
}

// CreateBatch inserts discovered citations, skipping canonical URLs the page
// already has. Returns how many rows were actually inserted.
func (r *citationRepository) CreateBatch(ctx context.Context, citations []*domain.Citation) (int, error) {
	if len(citations) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, c := range citations {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}

		tag, err := r.db.Exec(ctx, `
			INSERT INTO citations (id, page_id, url, canonical_url, title,
				verification_status, scan_status, relevance_decision, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (page_id, canonical_url) DO NOTHING`,
			c.ID, c.PageID, c.URL, c.CanonicalURL, c.Title,
			c.VerificationStatus, c.ScanStatus, c.RelevanceDecision, c.Position, c.CreatedAt)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert citation %s: %w", c.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}

	r.logger.InfoContext(ctx, "citations created",
		"requested", len(citations),
		"inserted", inserted)

	return inserted, nil
}

func (r *citationRepository) FindByID(ctx context.Context, id string) (*domain.Citation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE id = $1`, id)

	c, err := scanCitation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find citation %s: %w", id, err)
	}
	return c, nil
}

// SelectNext fetches the eligible candidates for a page ordered by priority
// and picks the winner, preferring citations that leave the parent site.
// Restricted hosts are skipped this cycle; they stay eligible for later ones.
// No LIMIT: the host filter runs here, so a truncated result set could hide
// an eligible external citation behind restricted rows.
func (r *citationRepository) SelectNext(ctx context.Context, pageID, topicID, parentHost string, excludeHosts []string, verifyCutoff time.Time) (*domain.Citation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+citationColumns+`
		FROM citations c
		WHERE c.page_id = $1
		  AND c.scan_status = 'not_scanned'
		  AND NOT (c.verification_status = 'failed' AND c.last_verified_at > $3)
		  AND NOT EXISTS (
		      SELECT 1 FROM content_records cr
		      WHERE cr.topic_id = $2 AND cr.canonical_url = c.canonical_url
		  )
		ORDER BY c.ai_priority_score DESC, c.position ASC`,
		pageID, topicID, verifyCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select next citation: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]struct{}, len(excludeHosts))
	for _, h := range excludeHosts {
		excluded[h] = struct{}{}
	}

	var bestInternal *domain.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan citation row: %w", err)
		}
		if _, skip := excluded[domain.HostOf(c.URL)]; skip {
			continue
		}
		if c.External(parentHost) {
			return c, nil
		}
		if bestInternal == nil {
			bestInternal = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate citation rows: %w", err)
	}

	return bestInternal, nil
}

// ResolveDuplicates finalizes unscanned citations whose canonical URL already
// has a content record for the topic. They adopt the existing record as their
// saved content, so the page can complete without a redundant fetch cycle.
func (r *citationRepository) ResolveDuplicates(ctx context.Context, pageID, topicID string, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE citations c
		SET scan_status = 'scanned', relevance_decision = 'saved',
		    saved_content_id = cr.id, ai_priority_score = cr.priority_score,
		    last_scanned_at = $3, error_message = ''
		FROM content_records cr
		WHERE c.page_id = $1
		  AND c.scan_status = 'not_scanned'
		  AND c.relevance_decision = ''
		  AND cr.topic_id = $2
		  AND cr.canonical_url = c.canonical_url`,
		pageID, topicID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve duplicate citations: %w", err)
	}

	resolved := int(tag.RowsAffected())
	if resolved > 0 {
		r.logger.InfoContext(ctx, "duplicate citations resolved",
			"page_id", pageID,
			"resolved", resolved)
	}
	return resolved, nil
}

// UpdateVerification moves the verification status, enforcing legality in
// the WHERE clause so concurrent writers cannot race past the state machine.
func (r *citationRepository) UpdateVerification(ctx context.Context, id string, status domain.VerificationStatus, errorMessage string) error {
	var allowedFrom []string
	switch status {
	case domain.VerificationVerifying:
		allowedFrom = []string{
			string(domain.VerificationPending),
			string(domain.VerificationPendingInternal),
			string(domain.VerificationFailed),
		}
	case domain.VerificationVerified, domain.VerificationFailed:
		allowedFrom = []string{string(domain.VerificationVerifying)}
	default:
		return fmt.Errorf("%w: verification -> %s", domain.ErrIllegalTransition, status)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE citations
		SET verification_status = $1, error_message = $2, last_verified_at = NOW()
		WHERE id = $3 AND verification_status = ANY($4)`,
		status, errorMessage, id, allowedFrom)
	if err != nil {
		return fmt.Errorf("failed to update verification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: verification -> %s for citation %s", domain.ErrIllegalTransition, status, id)
	}
	return nil
}

func (r *citationRepository) UpdateScanStatus(ctx context.Context, id string, status domain.ScanStatus) error {
	var allowedFrom []string
	switch status {
	case domain.ScanScanning:
		allowedFrom = []string{string(domain.ScanNotScanned)}
	case domain.ScanScanned, domain.ScanDenied:
		allowedFrom = []string{string(domain.ScanScanning)}
	default:
		return fmt.Errorf("%w: scan -> %s", domain.ErrIllegalTransition, status)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE citations
		SET scan_status = $1
		WHERE id = $2 AND scan_status = ANY($3)`,
		status, id, allowedFrom)
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scan -> %s for citation %s", domain.ErrIllegalTransition, status, id)
	}
	return nil
}

// FinalizeScan concludes a scan cycle. The decision column is written only
// while it is still empty: a second finalize for the same cycle affects zero
// rows and surfaces as ErrDecisionAlreadyMade.
func (r *citationRepository) FinalizeScan(ctx context.Context, id string, decision domain.RelevanceDecision, score float64, contentText, savedContentID string, scannedAt time.Time) error {
	target := domain.ScanScanned
	if decision == domain.DecisionDenied {
		target = domain.ScanDenied
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE citations
		SET scan_status = $1, relevance_decision = $2, ai_priority_score = $3,
		    content_text = $4, saved_content_id = $5, last_scanned_at = $6,
		    error_message = ''
		WHERE id = $7 AND scan_status = 'scanning' AND relevance_decision = ''`,
		target, decision, score, contentText, savedContentID, scannedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finalize citation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: citation %s", domain.ErrDecisionAlreadyMade, id)
	}

	r.logger.InfoContext(ctx, "citation finalized",
		"citation_id", id,
		"decision", decision,
		"score", score)

	return nil
}

// AbortScan backs a scanning citation out of its cycle after a transient
// failure (extraction, scoring, persistence). No decision is recorded; the
// citation stays eligible for a later cycle.
func (r *citationRepository) AbortScan(ctx context.Context, id string, errorMessage string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE citations
		SET scan_status = 'not_scanned', error_message = $1
		WHERE id = $2 AND scan_status = 'scanning'`, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to abort scan of citation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: abort of citation %s", domain.ErrIllegalTransition, id)
	}
	return nil
}

// ResetForReprocess clears a denied citation back to not_scanned so a new
// scan cycle may reach its own decision.
func (r *citationRepository) ResetForReprocess(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE citations
		SET scan_status = 'not_scanned', relevance_decision = '', content_text = '', error_message = ''
		WHERE id = $1 AND scan_status = 'scanned_denied'`, id)
	if err != nil {
		return fmt.Errorf("failed to reset citation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reset of citation %s", domain.ErrIllegalTransition, id)
	}

	r.logger.InfoContext(ctx, "citation reset for reprocessing", "citation_id", id)
	return nil
}

// FindDeniedForReprocess lists denied citations whose denial-time score beat
// the high-confidence threshold and whose cooldown has fully elapsed.
func (r *citationRepository) FindDeniedForReprocess(ctx context.Context, topicID string, scoreThreshold float64, cooldown time.Duration, now time.Time) ([]*domain.Citation, error) {
	cutoff := now.Add(-cooldown)

	rows, err := r.db.Query(ctx, `
		SELECT `+citationColumns+`
		FROM citations c
		JOIN monitored_pages p ON p.id = c.page_id
		WHERE p.topic_id = $1
		  AND c.scan_status = 'scanned_denied'
		  AND c.ai_priority_score > $2
		  AND c.last_scanned_at IS NOT NULL
		  AND c.last_scanned_at <= $3
		ORDER BY c.ai_priority_score DESC`,
		topicID, scoreThreshold, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find denied citations: %w", err)
	}
	defer rows.Close()

	var citations []*domain.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan citation row: %w", err)
		}
		citations = append(citations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate citation rows: %w", err)
	}

	return citations, nil
}

func (r *citationRepository) CountNonTerminalByPage(ctx context.Context, pageID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM citations
		WHERE page_id = $1 AND scan_status NOT IN ('scanned', 'scanned_denied')`,
		pageID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unfinished citations: %w", err)
	}
	return count, nil
}

func scanCitation(row pgx.Row) (*domain.Citation, error) {
	var c domain.Citation
	err := row.Scan(&c.ID, &c.PageID, &c.URL, &c.CanonicalURL, &c.Title,
		&c.VerificationStatus, &c.ScanStatus, &c.RelevanceDecision,
		&c.AIPriorityScore, &c.ContentText, &c.SavedContentID,
		&c.LastScannedAt, &c.LastVerifiedAt, &c.ErrorMessage, &c.Position, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
