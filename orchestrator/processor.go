package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"citation-processor/domain"
	"citation-processor/repository"
	"citation-processor/scanner"
)

// Outcome reports what processing a candidate achieved this cycle.
type Outcome struct {
	Host string
	// Decided is true when a citation reached a relevance decision; Accepted
	// distinguishes saved from denied. Only decided outcomes feed the
	// scheduler's host accept-rate.
	Decided  bool
	Accepted bool
	// Done means the candidate's page has no further work and the candidate
	// should leave the frontier.
	Done bool
}

// Processor advances one candidate by one unit of work.
type Processor interface {
	Process(ctx context.Context, c *domain.Candidate) (Outcome, error)
}

// Scans is the scanner surface the processor drives.
type Scans interface {
	DiscoverCitations(ctx context.Context, page *domain.MonitoredPage) (int, error)
	ProcessOne(ctx context.Context, page *domain.MonitoredPage) (*scanner.Result, error)
}

// PageProcessor resolves candidates to monitored pages and runs one citation
// cycle per admission. A candidate's URL identifies its page within the
// topic; unknown URLs register a fresh page on first admission.
type PageProcessor struct {
	pages  repository.PageRepository
	scans  Scans
	logger *slog.Logger

	now func() time.Time
}

// NewPageProcessor creates the candidate-to-page bridge.
func NewPageProcessor(pages repository.PageRepository, scans Scans, logger *slog.Logger) *PageProcessor {
	return &PageProcessor{
		pages:  pages,
		scans:  scans,
		logger: logger,
		now:    time.Now,
	}
}

func (p *PageProcessor) Process(ctx context.Context, c *domain.Candidate) (Outcome, error) {
	page, err := p.pages.FindBySourceURL(ctx, c.TopicID, c.URL)
	if errors.Is(err, domain.ErrPageNotFound) {
		page = &domain.MonitoredPage{
			TopicID:   c.TopicID,
			SourceURL: c.URL,
			Status:    domain.PagePending,
			CreatedAt: p.now(),
			UpdatedAt: p.now(),
		}
		if createErr := p.pages.Create(ctx, page); createErr != nil {
			return Outcome{}, createErr
		}
	} else if err != nil {
		return Outcome{}, err
	}

	if !page.CitationsExtracted {
		if _, err := p.scans.DiscoverCitations(ctx, page); err != nil {
			return Outcome{}, err
		}
		refreshed, err := p.pages.FindByID(ctx, page.ID)
		if err != nil {
			return Outcome{}, err
		}
		page = refreshed
	}

	result, err := p.scans.ProcessOne(ctx, page)
	if err != nil {
		return Outcome{}, err
	}

	if result == nil {
		refreshed, err := p.pages.FindByID(ctx, page.ID)
		if err != nil {
			return Outcome{}, err
		}
		// No eligible citation. Either the page just completed, or work is
		// deferred behind a restricted host and the candidate comes back.
		return Outcome{Host: c.Host, Done: refreshed.Status != domain.PageScanning}, nil
	}

	return Outcome{
		Host:     result.Host,
		Decided:  true,
		Accepted: result.Decision == domain.DecisionSaved,
	}, nil
}
