package domain

import "time"

// ContentRecord is the persisted body of an accepted citation. The dedup key
// is (TopicID, CanonicalURL); the sink never creates a second record for the
// same pair.
type ContentRecord struct {
	ID            string    `db:"id"`
	TopicID       string    `db:"topic_id"`
	CanonicalURL  string    `db:"canonical_url"`
	Title         string    `db:"title"`
	TextContent   string    `db:"text_content"`
	PriorityScore float64   `db:"priority_score"`
	CreatedAt     time.Time `db:"created_at"`
}

// FeedStatus is the downstream hand-off lifecycle.
type FeedStatus string

const (
	FeedPending    FeedStatus = "pending"
	FeedProcessing FeedStatus = "processing"
	FeedDone       FeedStatus = "done"
	FeedFailed     FeedStatus = "failed"
)

// FeedEntry is the hand-off row drained by the downstream agent-memory
// consumer. It is created in the same transaction as its ContentRecord:
// exactly one per accepted citation, never zero, never duplicated.
type FeedEntry struct {
	ID        string     `db:"id"`
	ContentID string     `db:"content_id"`
	Status    FeedStatus `db:"status"`
	Attempts  int        `db:"attempts"`
	CreatedAt time.Time  `db:"created_at"`
}
