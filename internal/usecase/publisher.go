package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

// PublishResult classifies the outcome of one publish-step invocation.
type PublishResult string

const (
	// ResultPosted means the article was published and marked posted.
	ResultPosted PublishResult = "posted"
	// ResultFailed means the publish attempt failed and the article was
	// marked failed; a manual retry can bring it back.
	ResultFailed PublishResult = "failed"
	// ResultSkipped means nothing was done: the article is gone or another
	// path already moved it out of the scheduled state.
	ResultSkipped PublishResult = "skipped"
)

// PublisherDeps wires the publish step's collaborators.
type PublisherDeps struct {
	Articles  ports.ArticleRepository
	Sites     ports.SiteRepository
	PostLog   ports.PostLogRepository
	Publisher ports.Publisher
	Register  ports.JobRegister

	CategoryName string
	Timeout      time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Publisher executes the publish step for scheduled articles and runs the
// recovery sweep. All collaborator failures are absorbed into persisted
// state plus a log entry; nothing propagates to the process level.
type Publisher struct {
	articles  ports.ArticleRepository
	sites     ports.SiteRepository
	postlog   ports.PostLogRepository
	publisher ports.Publisher
	register  ports.JobRegister

	category string
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// inflight serializes publish attempts per article id so that a timer
	// firing and a concurrent sweep can never both hold a write for the
	// same article.
	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewPublisher constructs the publish-step component.
func NewPublisher(deps PublisherDeps) *Publisher {
	p := &Publisher{
		articles:  deps.Articles,
		sites:     deps.Sites,
		postlog:   deps.PostLog,
		publisher: deps.Publisher,
		register:  deps.Register,
		category:  deps.CategoryName,
		timeout:   deps.Timeout,
		now:       deps.Now,
		logger:    deps.Logger,
		inflight:  map[string]*sync.Mutex{},
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.timeout <= 0 {
		p.timeout = 60 * time.Second
	}
	return p
}

// PublishArticle runs the publish step for one article id: it re-validates
// that the article is still scheduled, looks up the owning site, invokes the
// publish collaborator under the configured timeout, and records the
// outcome. Firing it twice for the same article is safe; the second call is
// a no-op.
func (p *Publisher) PublishArticle(ctx context.Context, articleID string) PublishResult {
	lock := p.lockFor(articleID)
	lock.Lock()
	defer lock.Unlock()

	article, err := p.articles.Get(ctx, articleID)
	if errors.Is(err, ports.ErrNotFound) {
		p.logger.Warn("scheduled article no longer exists", "article", articleID)
		return ResultSkipped
	}
	if err != nil {
		p.logger.Error("load article failed", "article", articleID, "error", err)
		return ResultSkipped
	}

	// Expected race with the sweep or a manual retry, not an error.
	if article.Status != domain.StatusScheduled {
		p.logger.Debug("article not in scheduled state; nothing to do",
			"article", articleID, "status", string(article.Status))
		return ResultSkipped
	}

	site, err := p.sites.GetSite(ctx, article.SiteID)
	if errors.Is(err, ports.ErrNotFound) {
		// Orphaned configuration: retrying cannot succeed until the site
		// reference is fixed, so surface it loudly.
		p.logger.Error("site missing for scheduled article",
			"article", articleID, "site", article.SiteID)
		p.fail(ctx, article, fmt.Sprintf("site %s not found", article.SiteID))
		return ResultFailed
	}
	if err != nil {
		p.logger.Error("load site failed", "article", articleID, "error", err)
		return ResultSkipped
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	remoteID, err := p.publisher.Publish(pubCtx, site, ports.Post{
		Title:            article.Title,
		Content:          article.Content,
		FeaturedImageURL: article.FeaturedImageURL,
		CategoryName:     p.category,
	})
	if err != nil {
		p.logger.Warn("publish failed", "article", articleID, "site", site.ID, "error", err)
		p.fail(ctx, article, err.Error())
		return ResultFailed
	}

	postedAt := p.now()
	ok, err := p.articles.MarkPosted(ctx, articleID, postedAt)
	if err != nil {
		p.logger.Error("record posted state failed", "article", articleID, "error", err)
		return ResultSkipped
	}
	if !ok {
		// Someone else completed the transition first.
		return ResultSkipped
	}

	p.appendLog(ctx, article, domain.StepPublishComplete, "remote post "+remoteID)
	p.logger.Info("article published", "article", articleID, "site", site.ID, "remote_id", remoteID)
	return ResultPosted
}

// RunDue is the recovery sweep: every article whose scheduled time has
// already passed is published immediately, bypassing the timer path. Safe to
// run at process start and on a periodic tick.
func (p *Publisher) RunDue(ctx context.Context) (int, error) {
	due, err := p.articles.Due(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("load due articles: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	p.logger.Info("recovery sweep found due articles", "count", len(due))
	posted := 0
	for _, article := range due {
		if p.PublishArticle(ctx, article.ID) == ResultPosted {
			posted++
		}
	}
	return posted, nil
}

// Retry moves a failed article back to pending so the next allocation run
// picks it up again. Any other status is left untouched.
func (p *Publisher) Retry(ctx context.Context, articleID string) (bool, error) {
	ok, err := p.articles.ResetFailed(ctx, articleID)
	if err != nil {
		return false, fmt.Errorf("reset article %s: %w", articleID, err)
	}
	if !ok {
		p.logger.Debug("retry ignored; article is not in failed state", "article", articleID)
		return false, nil
	}
	if p.register != nil {
		p.register.Cancel(articleID)
	}
	p.logger.Info("article queued for retry", "article", articleID)
	return true, nil
}

func (p *Publisher) fail(ctx context.Context, article domain.Article, detail string) {
	ok, err := p.articles.MarkFailed(ctx, article.ID, domain.StatusScheduled)
	if err != nil {
		p.logger.Error("record failed state failed", "article", article.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	p.appendLog(ctx, article, domain.StepPublishFailed, detail)
}

func (p *Publisher) appendLog(ctx context.Context, article domain.Article, step, detail string) {
	entry := domain.PostLogEntry{
		ArticleID: article.ID,
		SiteID:    article.SiteID,
		Step:      step,
		Genre:     article.Genre,
		Keyword:   article.Keyword,
		Title:     article.Title,
		Detail:    detail,
	}
	if err := p.postlog.Append(ctx, entry); err != nil {
		p.logger.Warn("post log append failed", "article", article.ID, "error", err)
	}
}

func (p *Publisher) lockFor(articleID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.inflight[articleID]
	if !ok {
		lock = &sync.Mutex{}
		p.inflight[articleID] = lock
	}
	return lock
}
