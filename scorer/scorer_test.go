package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citation-processor/config"
	"citation-processor/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))
}

func newTestScorer(baseURL string) *Scorer {
	return New(config.ScorerConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}, testLogger())
}

func TestScore_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/score", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "the extracted text", req["text"])
		assert.Equal(t, "Citation Title", req["title"])
		assert.Equal(t, "reef ecology", req["topic_context"])

		fmt.Fprint(w, `{"priority_score": 82.5, "is_relevant": true, "is_substantive_article": false}`)
	}))
	defer srv.Close()

	v, err := newTestScorer(srv.URL).Score(context.Background(), "the extracted text", "Citation Title", "reef ecology")

	require.NoError(t, err)
	assert.Equal(t, 82.5, v.PriorityScore)
	assert.True(t, v.IsRelevant)
	assert.False(t, v.IsSubstantiveArticle)
}

func TestScore_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestScorer(srv.URL).Score(context.Background(), "text", "title", "topic")
	assert.ErrorIs(t, err, domain.ErrScoringUnavailable)
}

func TestScore_ConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := newTestScorer(srv.URL).Score(context.Background(), "text", "title", "topic")
	assert.ErrorIs(t, err, domain.ErrScoringUnavailable)
}

func TestScore_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "text too large", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestScorer(srv.URL).Score(context.Background(), "text", "title", "topic")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrScoringUnavailable)
}

func TestScore_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	_, err := newTestScorer(srv.URL).Score(context.Background(), "text", "title", "topic")
	assert.Error(t, err)
}
