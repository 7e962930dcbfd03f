package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"citation-processor/connector"
	"citation-processor/domain"
	"citation-processor/extract"
	"citation-processor/repository"
	"citation-processor/scorer"
)

// In-memory fakes implementing the repository and collaborator interfaces.
// They enforce the same transition legality as the SQL implementations so
// the state machine is exercised end to end.

type fakeCitationRepo struct {
	citations map[string]*domain.Citation
	// contents mirrors the SQL dedup subquery against content_records.
	contents *fakeContentRepo
	now      func() time.Time
	nextID   int
}

var _ repository.CitationRepository = (*fakeCitationRepo)(nil)

func newFakeCitationRepo() *fakeCitationRepo {
	return &fakeCitationRepo{
		citations: make(map[string]*domain.Citation),
		now:       time.Now,
	}
}

func (f *fakeCitationRepo) CreateBatch(ctx context.Context, citations []*domain.Citation) (int, error) {
	inserted := 0
	for _, c := range citations {
		dup := false
		for _, existing := range f.citations {
			if existing.PageID == c.PageID && existing.CanonicalURL == c.CanonicalURL {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if c.ID == "" {
			f.nextID++
			c.ID = fmt.Sprintf("cit-%d", f.nextID)
		}
		cp := *c
		f.citations[c.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (f *fakeCitationRepo) FindByID(ctx context.Context, id string) (*domain.Citation, error) {
	c, ok := f.citations[id]
	if !ok {
		return nil, domain.ErrCitationNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCitationRepo) SelectNext(ctx context.Context, pageID, topicID, parentHost string, excludeHosts []string, verifyCutoff time.Time) (*domain.Citation, error) {
	excluded := make(map[string]struct{}, len(excludeHosts))
	for _, h := range excludeHosts {
		excluded[h] = struct{}{}
	}

	var eligible []*domain.Citation
	for _, c := range f.citations {
		if c.PageID != pageID || c.ScanStatus != domain.ScanNotScanned {
			continue
		}
		if c.VerificationStatus == domain.VerificationFailed &&
			c.LastVerifiedAt != nil && c.LastVerifiedAt.After(verifyCutoff) {
			continue
		}
		if f.hasContentRecord(ctx, topicID, c.CanonicalURL) {
			continue
		}
		if _, skip := excluded[domain.HostOf(c.URL)]; skip {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].AIPriorityScore != eligible[j].AIPriorityScore {
			return eligible[i].AIPriorityScore > eligible[j].AIPriorityScore
		}
		return eligible[i].Position < eligible[j].Position
	})

	for _, c := range eligible {
		if c.External(parentHost) {
			cp := *c
			return &cp, nil
		}
	}
	if len(eligible) > 0 {
		cp := *eligible[0]
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCitationRepo) hasContentRecord(ctx context.Context, topicID, canonicalURL string) bool {
	if f.contents == nil {
		return false
	}
	rec, _ := f.contents.FindByCanonicalURL(ctx, topicID, canonicalURL)
	return rec != nil
}

func (f *fakeCitationRepo) ResolveDuplicates(ctx context.Context, pageID, topicID string, now time.Time) (int, error) {
	resolved := 0
	for _, c := range f.citations {
		if c.PageID != pageID || c.ScanStatus != domain.ScanNotScanned || c.RelevanceDecision != domain.DecisionNone {
			continue
		}
		if f.contents == nil {
			continue
		}
		rec, _ := f.contents.FindByCanonicalURL(ctx, topicID, c.CanonicalURL)
		if rec == nil {
			continue
		}
		c.ScanStatus = domain.ScanScanned
		c.RelevanceDecision = domain.DecisionSaved
		c.SavedContentID = rec.ID
		c.AIPriorityScore = rec.PriorityScore
		t := now
		c.LastScannedAt = &t
		c.ErrorMessage = ""
		resolved++
	}
	return resolved, nil
}

func (f *fakeCitationRepo) UpdateVerification(ctx context.Context, id string, status domain.VerificationStatus, errorMessage string) error {
	c, ok := f.citations[id]
	if !ok {
		return domain.ErrCitationNotFound
	}
	next, err := c.VerificationStatus.Transition(status)
	if err != nil {
		return err
	}
	c.VerificationStatus = next
	c.ErrorMessage = errorMessage
	t := f.now()
	c.LastVerifiedAt = &t
	return nil
}

func (f *fakeCitationRepo) UpdateScanStatus(ctx context.Context, id string, status domain.ScanStatus) error {
	c, ok := f.citations[id]
	if !ok {
		return domain.ErrCitationNotFound
	}
	next, err := c.ScanStatus.Transition(status)
	if err != nil {
		return err
	}
	c.ScanStatus = next
	return nil
}

func (f *fakeCitationRepo) FinalizeScan(ctx context.Context, id string, decision domain.RelevanceDecision, score float64, contentText, savedContentID string, scannedAt time.Time) error {
	c, ok := f.citations[id]
	if !ok {
		return domain.ErrCitationNotFound
	}
	if c.ScanStatus != domain.ScanScanning || c.RelevanceDecision != domain.DecisionNone {
		return fmt.Errorf("%w: citation %s", domain.ErrDecisionAlreadyMade, id)
	}
	if decision == domain.DecisionDenied {
		c.ScanStatus = domain.ScanDenied
	} else {
		c.ScanStatus = domain.ScanScanned
	}
	c.RelevanceDecision = decision
	c.AIPriorityScore = score
	c.ContentText = contentText
	c.SavedContentID = savedContentID
	t := scannedAt
	c.LastScannedAt = &t
	c.ErrorMessage = ""
	return nil
}

func (f *fakeCitationRepo) AbortScan(ctx context.Context, id string, errorMessage string) error {
	c, ok := f.citations[id]
	if !ok {
		return domain.ErrCitationNotFound
	}
	if c.ScanStatus != domain.ScanScanning {
		return fmt.Errorf("%w: abort of citation %s", domain.ErrIllegalTransition, id)
	}
	c.ScanStatus = domain.ScanNotScanned
	c.ErrorMessage = errorMessage
	return nil
}

func (f *fakeCitationRepo) ResetForReprocess(ctx context.Context, id string) error {
	c, ok := f.citations[id]
	if !ok {
		return domain.ErrCitationNotFound
	}
	if c.ScanStatus != domain.ScanDenied {
		return fmt.Errorf("%w: reset of citation %s", domain.ErrIllegalTransition, id)
	}
	c.ScanStatus = domain.ScanNotScanned
	c.RelevanceDecision = domain.DecisionNone
	c.ContentText = ""
	c.ErrorMessage = ""
	return nil
}

func (f *fakeCitationRepo) FindDeniedForReprocess(ctx context.Context, topicID string, scoreThreshold float64, cooldown time.Duration, now time.Time) ([]*domain.Citation, error) {
	cutoff := now.Add(-cooldown)
	var out []*domain.Citation
	for _, c := range f.citations {
		if c.ScanStatus != domain.ScanDenied || c.AIPriorityScore <= scoreThreshold {
			continue
		}
		if c.LastScannedAt == nil || c.LastScannedAt.After(cutoff) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCitationRepo) CountNonTerminalByPage(ctx context.Context, pageID string) (int, error) {
	n := 0
	for _, c := range f.citations {
		if c.PageID == pageID && !c.ScanStatus.Terminal() {
			n++
		}
	}
	return n, nil
}

type fakePageRepo struct {
	pages     map[string]*domain.MonitoredPage
	citations *fakeCitationRepo
}

var _ repository.PageRepository = (*fakePageRepo)(nil)

func newFakePageRepo(citations *fakeCitationRepo) *fakePageRepo {
	return &fakePageRepo{pages: make(map[string]*domain.MonitoredPage), citations: citations}
}

func (f *fakePageRepo) Create(ctx context.Context, page *domain.MonitoredPage) error {
	cp := *page
	f.pages[page.ID] = &cp
	return nil
}

func (f *fakePageRepo) FindByID(ctx context.Context, id string) (*domain.MonitoredPage, error) {
	p, ok := f.pages[id]
	if !ok {
		return nil, domain.ErrPageNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePageRepo) FindBySourceURL(ctx context.Context, topicID, sourceURL string) (*domain.MonitoredPage, error) {
	for _, p := range f.pages {
		if p.TopicID == topicID && p.SourceURL == sourceURL {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPageNotFound
}

func (f *fakePageRepo) UpdateStatus(ctx context.Context, id string, status domain.PageStatus) error {
	p, ok := f.pages[id]
	if !ok {
		return domain.ErrPageNotFound
	}
	next, err := p.Status.Transition(status)
	if err != nil {
		return err
	}
	p.Status = next
	return nil
}

func (f *fakePageRepo) MarkCitationsExtracted(ctx context.Context, id string, citationCount int) error {
	p, ok := f.pages[id]
	if !ok {
		return domain.ErrPageNotFound
	}
	p.CitationsExtracted = true
	p.ContentScanned = true
	p.CitationCount = citationCount
	return nil
}

func (f *fakePageRepo) CompleteIfDone(ctx context.Context, id string) (bool, error) {
	p, ok := f.pages[id]
	if !ok {
		return false, domain.ErrPageNotFound
	}
	if p.Status != domain.PageScanning {
		return false, nil
	}
	n, _ := f.citations.CountNonTerminalByPage(ctx, id)
	if n > 0 {
		return false, nil
	}
	p.Status = domain.PageCompleted
	return true, nil
}

type fakeContentRepo struct {
	records map[string]*domain.ContentRecord // key topicID+"|"+canonicalURL
	feeds   int
	failing bool
	nextID  int
}

var _ repository.ContentRepository = (*fakeContentRepo)(nil)

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{records: make(map[string]*domain.ContentRecord)}
}

func (f *fakeContentRepo) Save(ctx context.Context, record *domain.ContentRecord) (string, error) {
	if f.failing {
		return "", fmt.Errorf("%w: connection reset", domain.ErrSave)
	}
	key := record.TopicID + "|" + record.CanonicalURL
	if existing, ok := f.records[key]; ok {
		return existing.ID, nil
	}
	f.nextID++
	cp := *record
	cp.ID = fmt.Sprintf("content-%d", f.nextID)
	f.records[key] = &cp
	f.feeds++
	return cp.ID, nil
}

func (f *fakeContentRepo) FindByCanonicalURL(ctx context.Context, topicID, canonicalURL string) (*domain.ContentRecord, error) {
	rec, ok := f.records[topicID+"|"+canonicalURL]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

type fakeFetcher struct {
	pages      map[string]*connector.Page
	probeErrs  map[string]error
	fetchErrs  map[string]error
	probeCalls []string
}

var _ Fetcher = (*fakeFetcher)(nil)

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:     make(map[string]*connector.Page),
		probeErrs: make(map[string]error),
		fetchErrs: make(map[string]error),
	}
}

func (f *fakeFetcher) Probe(ctx context.Context, url string) error {
	f.probeCalls = append(f.probeCalls, url)
	return f.probeErrs[url]
}

func (f *fakeFetcher) FetchPage(ctx context.Context, url string) (*connector.Page, error) {
	if err := f.fetchErrs[url]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return &connector.Page{URL: url, HTML: "<html><body><p>default body</p></body></html>"}, nil
}

type fakeExtractor struct {
	err    error
	result *extract.Result
}

var _ ContentExtractor = (*fakeExtractor)(nil)

func (f *fakeExtractor) Extract(raw string) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &extract.Result{Text: "extracted body text", Title: "Extracted Title", Tier: extract.TierReadability}, nil
}

type fakeScorer struct {
	err     error
	verdict scorer.Verdict
}

var _ RelevanceScorer = (*fakeScorer)(nil)

func (f *fakeScorer) Score(ctx context.Context, text, title, topicContext string) (*scorer.Verdict, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.verdict
	return &v, nil
}

type fakeGate struct {
	restricted []string
}

var _ HostGate = (*fakeGate)(nil)

func (f *fakeGate) RestrictedHosts() []string { return f.restricted }
