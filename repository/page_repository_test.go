package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citation-processor/domain"
)

func newPageRepo(t *testing.T) (PageRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPageRepository(mock, testLogger()), mock
}

func TestPageCreate(t *testing.T) {
	repo, mock := newPageRepo(t)

	page := &domain.MonitoredPage{
		TopicID:   "topic-1",
		SourceURL: "https://en.bigpedia.org/wiki/Coral_reef",
		Status:    domain.PagePending,
		CreatedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO monitored_pages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), page)
	require.NoError(t, err)
	assert.NotEmpty(t, page.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageFindByID_NotFound(t *testing.T) {
	repo, mock := newPageRepo(t)

	mock.ExpectQuery("FROM monitored_pages WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "topic_id", "source_url", "status", "content_scanned",
			"citations_extracted", "citation_count", "created_at", "updated_at",
		}))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageFindBySourceURL(t *testing.T) {
	repo, mock := newPageRepo(t)
	created := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM monitored_pages WHERE topic_id").
		WithArgs("topic-1", "https://en.bigpedia.org/wiki/Coral_reef").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "topic_id", "source_url", "status", "content_scanned",
			"citations_extracted", "citation_count", "created_at", "updated_at",
		}).AddRow("page-1", "topic-1", "https://en.bigpedia.org/wiki/Coral_reef",
			domain.PageScanning, true, true, 12, created, created))

	p, err := repo.FindBySourceURL(context.Background(), "topic-1", "https://en.bigpedia.org/wiki/Coral_reef")
	require.NoError(t, err)
	assert.Equal(t, "page-1", p.ID)
	assert.Equal(t, domain.PageScanning, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageFindBySourceURL_NotFound(t *testing.T) {
	repo, mock := newPageRepo(t)

	mock.ExpectQuery("FROM monitored_pages WHERE topic_id").
		WithArgs("topic-1", "https://nowhere.example.org/x").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "topic_id", "source_url", "status", "content_scanned",
			"citations_extracted", "citation_count", "created_at", "updated_at",
		}))

	_, err := repo.FindBySourceURL(context.Background(), "topic-1", "https://nowhere.example.org/x")
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageUpdateStatus(t *testing.T) {
	repo, mock := newPageRepo(t)

	mock.ExpectExec("UPDATE monitored_pages").
		WithArgs(domain.PageScanning, "page-1", []string{"pending", "error"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateStatus(context.Background(), "page-1", domain.PageScanning)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageUpdateStatus_CompletedIsFinal(t *testing.T) {
	repo, mock := newPageRepo(t)

	// Completed pages match no allowed source status.
	mock.ExpectExec("UPDATE monitored_pages").
		WithArgs(domain.PageError, "page-1", []string{"pending", "scanning"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "page-1", domain.PageError)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteIfDone(t *testing.T) {
	tests := map[string]struct {
		rowsAffected  int64
		wantCompleted bool
	}{
		"all citations terminal":    {rowsAffected: 1, wantCompleted: true},
		"unfinished citations left": {rowsAffected: 0, wantCompleted: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo, mock := newPageRepo(t)

			mock.ExpectExec("UPDATE monitored_pages").
				WithArgs("page-1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tc.rowsAffected))

			completed, err := repo.CompleteIfDone(context.Background(), "page-1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantCompleted, completed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
