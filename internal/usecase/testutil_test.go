package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

// fakeStore is an in-memory stand-in for the sqlite store.
type fakeStore struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	sites    map[string]domain.Site
	logs     []domain.PostLogEntry
}

var _ ports.ArticleRepository = (*fakeStore)(nil)
var _ ports.SiteRepository = (*fakeStore)(nil)
var _ ports.PostLogRepository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles: map[string]domain.Article{},
		sites:    map[string]domain.Site{},
	}
}

func (f *fakeStore) Insert(_ context.Context, a domain.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles[a.ID] = a
	return nil
}

func (f *fakeStore) Update(_ context.Context, a domain.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles[a.ID] = a
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return domain.Article{}, ports.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) Pending(_ context.Context, filter ports.ArticleFilter, limit int) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Article
	for _, a := range f.articles {
		if a.Status != domain.StatusPending {
			continue
		}
		if filter.SiteID != "" && a.SiteID != filter.SiteID {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Scheduled(_ context.Context) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Article
	for _, a := range f.articles {
		if a.Status == domain.StatusScheduled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Due(_ context.Context, now time.Time) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Article
	for _, a := range f.articles {
		if a.Status == domain.StatusScheduled && a.ScheduledTime != nil && !a.ScheduledTime.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(*out[j].ScheduledTime) })
	return out, nil
}

func (f *fakeStore) MarkScheduled(_ context.Context, id string, at time.Time) (bool, error) {
	return f.transition(id, domain.StatusPending, func(a *domain.Article) {
		a.Status = domain.StatusScheduled
		a.ScheduledTime = &at
	})
}

func (f *fakeStore) MarkPosted(_ context.Context, id string, at time.Time) (bool, error) {
	return f.transition(id, domain.StatusScheduled, func(a *domain.Article) {
		a.Status = domain.StatusPosted
		a.PostedTime = &at
		a.ScheduledTime = nil
	})
}

func (f *fakeStore) MarkFailed(_ context.Context, id string, from domain.ArticleStatus) (bool, error) {
	return f.transition(id, from, func(a *domain.Article) {
		a.Status = domain.StatusFailed
		a.ScheduledTime = nil
	})
}

func (f *fakeStore) ResetFailed(_ context.Context, id string) (bool, error) {
	return f.transition(id, domain.StatusFailed, func(a *domain.Article) {
		a.Status = domain.StatusPending
		a.ScheduledTime = nil
		a.PostedTime = nil
	})
}

func (f *fakeStore) transition(id string, from domain.ArticleStatus, apply func(*domain.Article)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok || a.Status != from {
		return false, nil
	}
	apply(&a)
	f.articles[id] = a
	return true, nil
}

func (f *fakeStore) GetSite(_ context.Context, id string) (domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sites[id]
	if !ok {
		return domain.Site{}, ports.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) Upsert(_ context.Context, s domain.Site) (domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites[s.ID] = s
	return s, nil
}

func (f *fakeStore) Append(_ context.Context, e domain.PostLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeStore) logSteps(step string) []domain.PostLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PostLogEntry
	for _, e := range f.logs {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeStore) article(id string) domain.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articles[id]
}

// fakeRegister records Schedule and Cancel calls.
type fakeRegister struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
}

var _ ports.JobRegister = (*fakeRegister)(nil)

func newFakeRegister() *fakeRegister {
	return &fakeRegister{scheduled: map[string]time.Time{}}
}

func (f *fakeRegister) Schedule(articleID string, at time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scheduled[articleID]; ok {
		return false
	}
	f.scheduled[articleID] = at
	return true
}

func (f *fakeRegister) Cancel(articleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, articleID)
	_, ok := f.scheduled[articleID]
	delete(f.scheduled, articleID)
	return ok
}

// fakePublisher counts Publish calls and returns a configured outcome.
type fakePublisher struct {
	mu       sync.Mutex
	calls    int
	lastPost ports.Post
	remoteID string
	err      error
}

var _ ports.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(_ context.Context, _ domain.Site, post ports.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPost = post
	if f.err != nil {
		return "", f.err
	}
	if f.remoteID == "" {
		return "1", nil
	}
	return f.remoteID, nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeChat returns canned generation results.
type fakeChat struct {
	keywords []string
	titleErr error
	bodyErr  error
	// failFor makes Title fail for one specific keyword.
	failFor string
}

var _ ports.ChatClient = (*fakeChat)(nil)

func (f *fakeChat) Keywords(_ context.Context, _ string) ([]string, error) {
	return f.keywords, nil
}

func (f *fakeChat) Title(_ context.Context, keyword string) (string, error) {
	if f.titleErr != nil || (f.failFor != "" && keyword == f.failFor) {
		if f.titleErr != nil {
			return "", f.titleErr
		}
		return "", context.DeadlineExceeded
	}
	return keyword + "とは？", nil
}

func (f *fakeChat) Body(_ context.Context, title string) (ports.BodyResult, error) {
	if f.bodyErr != nil {
		return ports.BodyResult{}, f.bodyErr
	}
	return ports.BodyResult{
		Body:         "<h2>" + title + "</h2><p>本文です。</p>",
		InputTokens:  100,
		OutputTokens: 400,
	}, nil
}

// fakeImages returns a fixed URL list.
type fakeImages struct {
	urls []string
	err  error
}

var _ ports.ImageSource = (*fakeImages)(nil)

func (f *fakeImages) Search(_ context.Context, _ string, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.urls) > limit {
		return f.urls[:limit], nil
	}
	return f.urls, nil
}
