// ABOUTME: This file implements the citation processing state machine
// ABOUTME: SelectNext, Verify, Extract, Score, and Finalize advance each citation exactly one way
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"citation-processor/config"
	"citation-processor/domain"
	"citation-processor/metrics"
	"citation-processor/repository"
)

// Result summarizes one completed citation cycle for the caller.
type Result struct {
	CitationID string
	URL        string
	Host       string
	Decision   domain.RelevanceDecision
	Score      float64
	ContentID  string
}

// Scanner drives citations through verify, extract, score, and finalize.
type Scanner struct {
	cfg       config.ScannerConfig
	citations repository.CitationRepository
	pages     repository.PageRepository
	contents  repository.ContentRepository
	fetcher   Fetcher
	extractor ContentExtractor
	scorer    RelevanceScorer
	gate      HostGate
	logger    *slog.Logger

	now func() time.Time
}

// New wires the state machine.
func New(
	cfg config.ScannerConfig,
	citations repository.CitationRepository,
	pages repository.PageRepository,
	contents repository.ContentRepository,
	fetcher Fetcher,
	extractor ContentExtractor,
	relevance RelevanceScorer,
	gate HostGate,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		cfg:       cfg,
		citations: citations,
		pages:     pages,
		contents:  contents,
		fetcher:   fetcher,
		extractor: extractor,
		scorer:    relevance,
		gate:      gate,
		logger:    logger,
		now:       time.Now,
	}
}

// DiscoverCitations fetches a monitored page and records its outbound links
// as citations. Same-site links start as pending_internal so external
// references get verified first. Duplicate canonical URLs within the page
// collapse to one citation.
func (s *Scanner) DiscoverCitations(ctx context.Context, page *domain.MonitoredPage) (int, error) {
	if err := s.pages.UpdateStatus(ctx, page.ID, domain.PageScanning); err != nil {
		return 0, err
	}

	fetched, err := s.fetcher.FetchPage(ctx, page.SourceURL)
	if err != nil {
		metrics.ProcessingFailures.WithLabelValues("discover").Inc()
		if stErr := s.pages.UpdateStatus(ctx, page.ID, domain.PageError); stErr != nil {
			s.logger.Error("failed to mark page errored", "page_id", page.ID, "error", stErr)
		}
		return 0, fmt.Errorf("%w: failed to fetch monitored page: %v", domain.ErrNetwork, err)
	}

	parentHost := domain.HostOf(page.SourceURL)
	seen := make(map[string]struct{})
	var citations []*domain.Citation

	for _, link := range fetched.Links {
		canonical, err := domain.CanonicalizeURL(link.URL)
		if err != nil {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		verification := domain.VerificationPending
		if domain.HostOf(link.URL) == parentHost {
			verification = domain.VerificationPendingInternal
		}

		citations = append(citations, &domain.Citation{
			PageID:             page.ID,
			URL:                link.URL,
			CanonicalURL:       canonical,
			Title:              link.Text,
			VerificationStatus: verification,
			ScanStatus:         domain.ScanNotScanned,
			Position:           link.Position,
			CreatedAt:          s.now(),
		})
	}

	inserted, err := s.citations.CreateBatch(ctx, citations)
	if err != nil {
		return inserted, err
	}
	if err := s.pages.MarkCitationsExtracted(ctx, page.ID, len(citations)); err != nil {
		return inserted, err
	}

	s.logger.Info("citations discovered",
		"page_id", page.ID,
		"links", len(fetched.Links),
		"citations", len(citations),
		"inserted", inserted)

	return inserted, nil
}

// SelectNext picks the best unscanned citation for a page, honoring host
// politeness restrictions and the failed-verification cooldown. Returns nil
// when the page has no eligible work.
func (s *Scanner) SelectNext(ctx context.Context, page *domain.MonitoredPage) (*domain.Citation, error) {
	topicID := page.TopicID
	parentHost := domain.HostOf(page.SourceURL)
	verifyCutoff := s.now().Add(-s.cfg.VerifyFailureCooldown)
	return s.citations.SelectNext(ctx, page.ID, topicID, parentHost, s.gate.RestrictedHosts(), verifyCutoff)
}

// Verify runs the existence probe. Failure records an error message and
// leaves the citation retryable after a cooldown, never terminal.
func (s *Scanner) Verify(ctx context.Context, c *domain.Citation) error {
	if c.VerificationStatus == domain.VerificationVerified {
		return nil
	}

	if err := s.citations.UpdateVerification(ctx, c.ID, domain.VerificationVerifying, ""); err != nil {
		return err
	}

	if err := s.fetcher.Probe(ctx, c.URL); err != nil {
		metrics.ProcessingFailures.WithLabelValues("verify").Inc()
		if vErr := s.citations.UpdateVerification(ctx, c.ID, domain.VerificationFailed, err.Error()); vErr != nil {
			s.logger.Error("failed to record verification failure", "citation_id", c.ID, "error", vErr)
		}
		return fmt.Errorf("%w: probe failed for %s: %v", domain.ErrNetwork, c.URL, err)
	}

	if err := s.citations.UpdateVerification(ctx, c.ID, domain.VerificationVerified, ""); err != nil {
		return err
	}
	c.VerificationStatus = domain.VerificationVerified
	return nil
}

// ProcessOne runs a full cycle for the next eligible citation of a page.
// Returns nil when no citation was eligible; the caller decides whether the
// page is finished or merely throttled.
func (s *Scanner) ProcessOne(ctx context.Context, page *domain.MonitoredPage) (*Result, error) {
	c, err := s.SelectNext(ctx, page)
	if err != nil {
		return nil, err
	}
	if c == nil {
		// Citations whose canonical URL was persisted through another page
		// adopt that record; otherwise they would stay not_scanned forever
		// while never being selected.
		resolved, err := s.citations.ResolveDuplicates(ctx, page.ID, page.TopicID, s.now())
		if err != nil {
			return nil, err
		}
		if resolved > 0 {
			metrics.CitationsProcessed.WithLabelValues(string(domain.DecisionSaved)).Add(float64(resolved))
			s.logger.Info("duplicate citations adopted existing content",
				"page_id", page.ID,
				"resolved", resolved)
		}
		if _, err := s.pages.CompleteIfDone(ctx, page.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.Verify(ctx, c); err != nil {
		return nil, err
	}

	if err := s.citations.UpdateScanStatus(ctx, c.ID, domain.ScanScanning); err != nil {
		return nil, err
	}

	result, err := s.scanAndFinalize(ctx, page, c)
	if err != nil {
		return nil, err
	}

	if _, err := s.pages.CompleteIfDone(ctx, page.ID); err != nil {
		s.logger.Error("page completion check failed", "page_id", page.ID, "error", err)
	}

	return result, nil
}

// scanAndFinalize covers fetch, extract, score, and the decision. Any
// transient failure aborts the cycle back to not_scanned so the decision
// column stays untouched.
func (s *Scanner) scanAndFinalize(ctx context.Context, page *domain.MonitoredPage, c *domain.Citation) (*Result, error) {
	fetched, err := s.fetcher.FetchPage(ctx, c.URL)
	if err != nil {
		metrics.ProcessingFailures.WithLabelValues("fetch").Inc()
		s.abort(ctx, c.ID, fmt.Sprintf("fetch failed: %v", err))
		return nil, fmt.Errorf("%w: fetch failed for %s: %v", domain.ErrNetwork, c.URL, err)
	}

	extracted, err := s.extractor.Extract(fetched.HTML)
	if err != nil {
		metrics.ProcessingFailures.WithLabelValues("extract").Inc()
		s.abort(ctx, c.ID, fmt.Sprintf("extraction failed: %v", err))
		// Insufficient content is an extraction failure; relevance was
		// never judged, so no denial is recorded.
		return nil, err
	}

	title := c.Title
	if extracted.Title != "" {
		title = extracted.Title
	}

	verdict, err := s.scorer.Score(ctx, extracted.Text, title, page.TopicID)
	if err != nil {
		metrics.ProcessingFailures.WithLabelValues("score").Inc()
		s.abort(ctx, c.ID, fmt.Sprintf("scoring failed: %v", err))
		return nil, err
	}

	accepted := s.accept(verdict.PriorityScore, verdict.IsRelevant, verdict.IsSubstantiveArticle)
	now := s.now()

	if !accepted {
		if err := s.citations.FinalizeScan(ctx, c.ID, domain.DecisionDenied, verdict.PriorityScore, "", "", now); err != nil {
			return nil, err
		}
		metrics.CitationsProcessed.WithLabelValues(string(domain.DecisionDenied)).Inc()

		return &Result{
			CitationID: c.ID,
			URL:        c.URL,
			Host:       domain.HostOf(c.URL),
			Decision:   domain.DecisionDenied,
			Score:      verdict.PriorityScore,
		}, nil
	}

	contentID, err := s.contents.Save(ctx, &domain.ContentRecord{
		TopicID:       page.TopicID,
		CanonicalURL:  c.CanonicalURL,
		Title:         title,
		TextContent:   extracted.Text,
		PriorityScore: verdict.PriorityScore,
	})
	if err != nil {
		metrics.ProcessingFailures.WithLabelValues("save").Inc()
		metrics.ContentSaved.WithLabelValues("error").Inc()
		s.abort(ctx, c.ID, fmt.Sprintf("save failed: %v", err))
		return nil, err
	}

	// savedContentID is written only after the sink transaction committed.
	if err := s.citations.FinalizeScan(ctx, c.ID, domain.DecisionSaved, verdict.PriorityScore, extracted.Text, contentID, now); err != nil {
		return nil, err
	}
	metrics.CitationsProcessed.WithLabelValues(string(domain.DecisionSaved)).Inc()

	s.logger.Info("citation saved",
		"citation_id", c.ID,
		"url", c.URL,
		"content_id", contentID,
		"score", verdict.PriorityScore,
		"tier", extracted.Tier)

	return &Result{
		CitationID: c.ID,
		URL:        c.URL,
		Host:       domain.HostOf(c.URL),
		Decision:   domain.DecisionSaved,
		Score:      verdict.PriorityScore,
		ContentID:  contentID,
	}, nil
}

// accept applies the decision rule: a high-confidence relevant verdict wins
// regardless of the substantive-article heuristic; otherwise both relevance
// and substance are required.
func (s *Scanner) accept(score float64, isRelevant, isSubstantive bool) bool {
	if score > s.cfg.HighConfidenceThreshold && isRelevant {
		return true
	}
	return isRelevant && isSubstantive
}

// ReprocessDenied resets denied citations whose score beat the
// high-confidence threshold once the reprocess cooldown has elapsed.
func (s *Scanner) ReprocessDenied(ctx context.Context, topicID string) (int, error) {
	denied, err := s.citations.FindDeniedForReprocess(ctx, topicID,
		s.cfg.HighConfidenceThreshold, s.cfg.ReprocessCooldown, s.now())
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, c := range denied {
		if err := s.citations.ResetForReprocess(ctx, c.ID); err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) {
				// Another worker got there first.
				continue
			}
			return reset, err
		}
		reset++
	}

	if reset > 0 {
		s.logger.Info("denied citations queued for reprocessing",
			"topic_id", topicID,
			"count", reset,
			"cooldown", s.cfg.ReprocessCooldown)
	}
	return reset, nil
}

func (s *Scanner) abort(ctx context.Context, citationID, reason string) {
	if err := s.citations.AbortScan(ctx, citationID, reason); err != nil {
		s.logger.Error("failed to abort scan cycle",
			"citation_id", citationID,
			"reason", reason,
			"error", err)
	}
}
