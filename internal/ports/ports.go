package ports

import (
	"context"
	"errors"
	"time"

	"ArticlePoster/internal/domain"
)

// ErrNotFound is returned by repositories when the requested row is absent.
var ErrNotFound = errors.New("not found")

// ArticleFilter narrows repository queries; zero fields match everything.
type ArticleFilter struct {
	SiteID string
	UserID string
}

// ArticleRepository persists article rows and their status transitions.
//
// The Mark* methods apply a conditional update: the transition happens only
// when the row is still in the expected source status, and the returned bool
// reports whether a row actually changed. That conditional write is the
// optimistic concurrency guard between the timer path, the recovery sweep,
// and manual retry.
type ArticleRepository interface {
	Insert(ctx context.Context, a domain.Article) error
	Update(ctx context.Context, a domain.Article) error
	Get(ctx context.Context, id string) (domain.Article, error)

	// Pending returns pending articles oldest-created first, up to limit
	// (limit <= 0 means no limit).
	Pending(ctx context.Context, f ArticleFilter, limit int) ([]domain.Article, error)
	// Scheduled returns every article currently in the scheduled state.
	Scheduled(ctx context.Context) ([]domain.Article, error)
	// Due returns scheduled articles whose scheduled time is at or before now.
	Due(ctx context.Context, now time.Time) ([]domain.Article, error)

	// MarkScheduled: pending -> scheduled, recording the assigned time.
	MarkScheduled(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkPosted: scheduled -> posted, recording the posted time and
	// clearing the scheduled time.
	MarkPosted(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkFailed: from -> failed, clearing the scheduled time.
	MarkFailed(ctx context.Context, id string, from domain.ArticleStatus) (bool, error)
	// ResetFailed: failed -> pending, for manual retry.
	ResetFailed(ctx context.Context, id string) (bool, error)
}

// SiteRepository stores publish destinations.
type SiteRepository interface {
	GetSite(ctx context.Context, id string) (domain.Site, error)
	// Upsert reuses an existing site with the same user and URL, otherwise
	// inserts; it returns the stored row either way.
	Upsert(ctx context.Context, s domain.Site) (domain.Site, error)
}

// PostLogRepository appends observability records. Entries are never read
// back by the pipeline, mutated, or deleted.
type PostLogRepository interface {
	Append(ctx context.Context, e domain.PostLogEntry) error
}

// BodyResult carries the generated article body plus token accounting.
type BodyResult struct {
	Body         string
	InputTokens  int
	OutputTokens int
}

// ChatClient generates SEO content through a chat-completions API.
type ChatClient interface {
	Keywords(ctx context.Context, genre string) ([]string, error)
	Title(ctx context.Context, keyword string) (string, error)
	Body(ctx context.Context, title string) (BodyResult, error)
}

// ImageSource searches stock images and returns direct image URLs.
type ImageSource interface {
	Search(ctx context.Context, keyword string, limit int) ([]string, error)
}

// Post is the payload handed to a Publisher.
type Post struct {
	Title            string
	Content          string
	FeaturedImageURL string
	CategoryName     string
}

// Publisher submits a post to a destination site and returns the remote
// post id. Errors are opaque; any error means the publish failed.
type Publisher interface {
	Publish(ctx context.Context, site domain.Site, post Post) (string, error)
}

// JobRegister binds article ids to one-shot fire times. Scheduling the same
// article twice before it fires is a no-op.
type JobRegister interface {
	Schedule(articleID string, at time.Time) bool
	Cancel(articleID string) bool
}
