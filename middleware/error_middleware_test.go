package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citation-processor/domain"
	"citation-processor/orchestrator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))
}

func TestCustomHTTPErrorHandler(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		"page not found": {
			err:        fmt.Errorf("lookup: %w", domain.ErrPageNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		"run not found": {
			err:        orchestrator.ErrRunNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		"duplicate run": {
			err:        orchestrator.ErrRunActive,
			wantStatus: http.StatusConflict,
			wantCode:   "RUN_ACTIVE",
		},
		"bad URL": {
			err:        domain.ErrNotAbsoluteURL,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_URL",
		},
		"upstream down": {
			err:        fmt.Errorf("%w: scorer timeout", domain.ErrScoringUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		"echo error passthrough": {
			err:        echo.NewHTTPError(http.StatusBadRequest, "bad input"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "HTTP_ERROR",
		},
		"unknown error hidden": {
			err:        errors.New("pq: column does not exist"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			CustomHTTPErrorHandler(testLogger())(tc.err, c)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantCode)
		})
	}
}

func TestCustomHTTPErrorHandler_HidesInternalDetails(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	CustomHTTPErrorHandler(testLogger())(errors.New("pq: secret table missing"), c)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret table")
}
