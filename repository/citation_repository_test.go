package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citation-processor/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))
}

func newCitationRepo(t *testing.T) (CitationRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewCitationRepository(mock, testLogger()), mock
}

func citationRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "page_id", "url", "canonical_url", "title", "verification_status",
		"scan_status", "relevance_decision", "ai_priority_score", "content_text",
		"saved_content_id", "last_scanned_at", "last_verified_at", "error_message", "position", "created_at",
	})
}

func addCitationRow(rows *pgxmock.Rows, id, url string, score float64, position int) *pgxmock.Rows {
	return rows.AddRow(id, "page-1", url, url, "Title",
		domain.VerificationPending, domain.ScanNotScanned, domain.DecisionNone,
		score, "", "", (*time.Time)(nil), (*time.Time)(nil), "", position,
		time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
}

func verifyCutoff() time.Time {
	return time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
}

func TestCreateBatch(t *testing.T) {
	repo, mock := newCitationRepo(t)

	citations := []*domain.Citation{
		{PageID: "page-1", URL: "https://a.example.org/x", CanonicalURL: "https://a.example.org/x", Position: 0},
		{PageID: "page-1", URL: "https://b.example.org/y", CanonicalURL: "https://b.example.org/y", Position: 1},
	}

	mock.ExpectExec("INSERT INTO citations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Second row collides on (page_id, canonical_url) and is skipped.
	mock.ExpectExec("INSERT INTO citations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.CreateBatch(context.Background(), citations)

	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NotEmpty(t, citations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM citations WHERE id").
		WithArgs("missing").
		WillReturnRows(citationRows())

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCitationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNext_PrefersExternal(t *testing.T) {
	repo, mock := newCitationRepo(t)

	// Internal citation has the higher score, but the external one wins.
	rows := citationRows()
	rows = addCitationRow(rows, "cit-internal", "https://parent.example.org/deep", 90, 0)
	rows = addCitationRow(rows, "cit-external", "https://other.example.org/ref", 70, 1)

	mock.ExpectQuery("FROM citations c").
		WithArgs("page-1", "topic-1", verifyCutoff()).
		WillReturnRows(rows)

	c, err := repo.SelectNext(context.Background(), "page-1", "topic-1", "parent.example.org", nil, verifyCutoff())

	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "cit-external", c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNext_FallsBackToInternal(t *testing.T) {
	repo, mock := newCitationRepo(t)

	rows := citationRows()
	rows = addCitationRow(rows, "cit-internal", "https://parent.example.org/deep", 50, 0)

	mock.ExpectQuery("FROM citations c").
		WithArgs("page-1", "topic-1", verifyCutoff()).
		WillReturnRows(rows)

	c, err := repo.SelectNext(context.Background(), "page-1", "topic-1", "parent.example.org", nil, verifyCutoff())

	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "cit-internal", c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNext_SkipsRestrictedHosts(t *testing.T) {
	repo, mock := newCitationRepo(t)

	rows := citationRows()
	rows = addCitationRow(rows, "cit-throttled", "https://busy.example.org/a", 95, 0)
	rows = addCitationRow(rows, "cit-free", "https://calm.example.org/b", 40, 1)

	mock.ExpectQuery("FROM citations c").
		WithArgs("page-1", "topic-1", verifyCutoff()).
		WillReturnRows(rows)

	c, err := repo.SelectNext(context.Background(), "page-1", "topic-1", "parent.example.org",
		[]string{"busy.example.org"}, verifyCutoff())

	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "cit-free", c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNext_Empty(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectQuery("FROM citations c").
		WithArgs("page-1", "topic-1", verifyCutoff()).
		WillReturnRows(citationRows())

	c, err := repo.SelectNext(context.Background(), "page-1", "topic-1", "parent.example.org", nil, verifyCutoff())

	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNext_FailedVerificationCooldownClause(t *testing.T) {
	repo, mock := newCitationRepo(t)

	// Failed verifications newer than the cutoff are filtered in SQL.
	mock.ExpectQuery(`verification_status = 'failed' AND c\.last_verified_at >`).
		WithArgs("page-1", "topic-1", verifyCutoff()).
		WillReturnRows(citationRows())

	c, err := repo.SelectNext(context.Background(), "page-1", "topic-1", "parent.example.org", nil, verifyCutoff())

	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveDuplicates(t *testing.T) {
	repo, mock := newCitationRepo(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE citations c").
		WithArgs("page-1", "topic-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	resolved, err := repo.ResolveDuplicates(context.Background(), "page-1", "topic-1", now)

	require.NoError(t, err)
	assert.Equal(t, 2, resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVerification(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectExec("UPDATE citations").
		WithArgs(domain.VerificationVerifying, "", "cit-1",
			[]string{"pending", "pending_internal", "failed"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateVerification(context.Background(), "cit-1", domain.VerificationVerifying, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVerification_IllegalTransition(t *testing.T) {
	repo, mock := newCitationRepo(t)

	// Already verified: the guarded WHERE clause matches nothing.
	mock.ExpectExec("UPDATE citations").
		WithArgs(domain.VerificationVerified, "", "cit-1", []string{"verifying"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateVerification(context.Background(), "cit-1", domain.VerificationVerified, "")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScanStatus_RejectsRegression(t *testing.T) {
	repo, mock := newCitationRepo(t)

	// Targeting not_scanned is never a forward move.
	err := repo.UpdateScanStatus(context.Background(), "cit-1", domain.ScanNotScanned)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeScan(t *testing.T) {
	repo, mock := newCitationRepo(t)
	scannedAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE citations").
		WithArgs(domain.ScanScanned, domain.DecisionSaved, 82.5, "body text", "content-1", scannedAt, "cit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.FinalizeScan(context.Background(), "cit-1", domain.DecisionSaved, 82.5, "body text", "content-1", scannedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeScan_SecondDecisionRejected(t *testing.T) {
	repo, mock := newCitationRepo(t)
	scannedAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE citations").
		WithArgs(domain.ScanDenied, domain.DecisionDenied, 30.0, "", "", scannedAt, "cit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.FinalizeScan(context.Background(), "cit-1", domain.DecisionDenied, 30.0, "", "", scannedAt)
	assert.ErrorIs(t, err, domain.ErrDecisionAlreadyMade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbortScan(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectExec("UPDATE citations").
		WithArgs("scorer unavailable", "cit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.AbortScan(context.Background(), "cit-1", "scorer unavailable")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetForReprocess(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectExec("UPDATE citations").
		WithArgs("cit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ResetForReprocess(context.Background(), "cit-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDeniedForReprocess_CutoffArithmetic(t *testing.T) {
	repo, mock := newCitationRepo(t)

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cooldown := 24 * time.Hour

	rows := citationRows()
	rows = addCitationRow(rows, "cit-denied", "https://a.example.org/x", 95, 0)

	mock.ExpectQuery("FROM citations c").
		WithArgs("topic-1", 60.0, now.Add(-cooldown)).
		WillReturnRows(rows)

	citations, err := repo.FindDeniedForReprocess(context.Background(), "topic-1", 60.0, cooldown, now)

	require.NoError(t, err)
	require.Len(t, citations, 1)
	assert.Equal(t, "cit-denied", citations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountNonTerminalByPage(t *testing.T) {
	repo, mock := newCitationRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("page-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountNonTerminalByPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
