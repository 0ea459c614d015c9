package domain

import "time"

// Step labels recorded in the post log. Free-form strings; these are the
// ones the pipeline itself emits.
const (
	StepKeywordsGenerated = "keyword generation complete"
	StepArticleGenerated  = "article generated"
	StepScheduleAssigned  = "schedule assigned"
	StepPublishComplete   = "publish complete"
	StepPublishFailed     = "publish failed"
)

// PostLogEntry is one append-only observability record. The pipeline only
// ever writes these; nothing reads them back to make decisions.
type PostLogEntry struct {
	ID        string
	ArticleID string
	SiteID    string
	Step      string
	Genre     string
	Keyword   string
	Title     string
	Detail    string
	CreatedAt time.Time
}
