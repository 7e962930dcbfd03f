package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"citation-processor/domain"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// the same surface in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CitationRepository persists the citation lifecycle.
type CitationRepository interface {
	CreateBatch(ctx context.Context, citations []*domain.Citation) (int, error)
	FindByID(ctx context.Context, id string) (*domain.Citation, error)
	// SelectNext returns the best unscanned citation for a page: highest
	// priority, external links before same-site ones, restricted hosts and
	// already-persisted canonical URLs skipped. Failed verifications newer
	// than verifyCutoff are still cooling down and are skipped too. Returns
	// nil when nothing is eligible.
	SelectNext(ctx context.Context, pageID, topicID, parentHost string, excludeHosts []string, verifyCutoff time.Time) (*domain.Citation, error)
	// ResolveDuplicates finalizes not_scanned citations whose canonical URL
	// already has a content record for the topic: they adopt the existing
	// record as saved so the page can reach completion. Returns how many
	// citations were finalized.
	ResolveDuplicates(ctx context.Context, pageID, topicID string, now time.Time) (int, error)
	UpdateVerification(ctx context.Context, id string, status domain.VerificationStatus, errorMessage string) error
	UpdateScanStatus(ctx context.Context, id string, status domain.ScanStatus) error
	// FinalizeScan records the relevance decision exactly once; a second
	// call for the same scan cycle returns ErrDecisionAlreadyMade.
	FinalizeScan(ctx context.Context, id string, decision domain.RelevanceDecision, score float64, contentText, savedContentID string, scannedAt time.Time) error
	// AbortScan returns a scanning citation to not_scanned without a
	// decision, recording why the cycle could not finish.
	AbortScan(ctx context.Context, id string, errorMessage string) error
	// ResetForReprocess clears a denied citation for a fresh scan cycle.
	ResetForReprocess(ctx context.Context, id string) error
	FindDeniedForReprocess(ctx context.Context, topicID string, scoreThreshold float64, cooldown time.Duration, now time.Time) ([]*domain.Citation, error)
	CountNonTerminalByPage(ctx context.Context, pageID string) (int, error)
}

// PageRepository persists monitored pages.
type PageRepository interface {
	Create(ctx context.Context, page *domain.MonitoredPage) error
	FindByID(ctx context.Context, id string) (*domain.MonitoredPage, error)
	// FindBySourceURL resolves a frontier candidate's URL to its page.
	FindBySourceURL(ctx context.Context, topicID, sourceURL string) (*domain.MonitoredPage, error)
	UpdateStatus(ctx context.Context, id string, status domain.PageStatus) error
	MarkCitationsExtracted(ctx context.Context, id string, citationCount int) error
	// CompleteIfDone flips a scanning page to completed once every child
	// citation has a terminal scan status. Reports whether it completed.
	CompleteIfDone(ctx context.Context, id string) (bool, error)
}

// ContentRepository is the idempotent persistence sink for accepted
// citations.
type ContentRepository interface {
	// Save persists a ContentRecord and its FeedEntry atomically, or
	// returns the existing record's ID for a repeated (topic, canonical
	// URL) pair.
	Save(ctx context.Context, record *domain.ContentRecord) (string, error)
	FindByCanonicalURL(ctx context.Context, topicID, canonicalURL string) (*domain.ContentRecord, error)
}
