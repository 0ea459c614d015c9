package domain

import "time"

// ArticleStatus is the single active state of an article's lifecycle.
type ArticleStatus string

const (
	StatusPending    ArticleStatus = "pending"
	StatusGenerating ArticleStatus = "generating"
	StatusScheduled  ArticleStatus = "scheduled"
	StatusPosted     ArticleStatus = "posted"
	StatusFailed     ArticleStatus = "failed"
)

// Article is a generated piece of content moving towards publication.
//
// ScheduledTime is set exactly while Status == StatusScheduled;
// PostedTime is set exactly while Status == StatusPosted.
type Article struct {
	ID     string
	UserID string
	SiteID string

	Genre            string
	Keyword          string
	Title            string
	Content          string
	FeaturedImageURL string
	ContentImageURL  string
	PreviewHTML      string

	GPTTokens  int
	GPTCostUSD float64

	Status        ArticleStatus
	ScheduledTime *time.Time
	PostedTime    *time.Time
	CreatedAt     time.Time
}

// Site is a WordPress publish destination owned by one user.
type Site struct {
	ID            string
	UserID        string
	Name          string
	WPURL         string
	WPUsername    string
	WPAppPassword string
}
