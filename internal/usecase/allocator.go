package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

// Policy B always draws hours from this broader window: [8, 21).
const (
	batchStartHour = 8
	batchEndHour   = 21
)

// slotAttempts bounds the re-roll loop before falling back to a linear
// probe, so a crowded window can never spin forever.
const slotAttempts = 100

// Window is one preferred publishing daypart; hours land in [Start, End).
// Windows handed to the allocator must be ascending and non-overlapping so
// that slots assigned within one run fire in article creation order.
type Window struct {
	Start int
	End   int
}

// BatchOutcome reports what a full-batch allocation did. Deferred is not an
// error: the caller is expected to try again once more articles exist.
type BatchOutcome struct {
	Scheduled int
	Deferred  bool
	Reason    string
}

// AllocatorDeps wires the allocator's collaborators.
type AllocatorDeps struct {
	Articles ports.ArticleRepository
	PostLog  ports.PostLogRepository
	Register ports.JobRegister

	Windows      []Window
	BatchSize    int
	BatchDays    int
	PerDay       int
	FallbackHour int

	Rand     *rand.Rand
	Now      func() time.Time
	Location *time.Location
	Logger   *slog.Logger
}

// Allocator turns pending articles into future publish timestamps.
type Allocator struct {
	articles ports.ArticleRepository
	postlog  ports.PostLogRepository
	register ports.JobRegister

	windows      []Window
	batchSize    int
	batchDays    int
	perDay       int
	fallbackHour int

	rng    *rand.Rand
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// NewAllocator constructs the allocation component. Rand is injectable so
// tests can seed it; a nil Rand gets a time-seeded source.
func NewAllocator(deps AllocatorDeps) *Allocator {
	a := &Allocator{
		articles:     deps.Articles,
		postlog:      deps.PostLog,
		register:     deps.Register,
		windows:      deps.Windows,
		batchSize:    deps.BatchSize,
		batchDays:    deps.BatchDays,
		perDay:       deps.PerDay,
		fallbackHour: deps.FallbackHour,
		rng:          deps.Rand,
		now:          deps.Now,
		loc:          deps.Location,
		logger:       deps.Logger,
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.loc == nil {
		a.loc = time.UTC
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.batchSize <= 0 {
		a.batchSize = 10
	}
	if a.batchDays <= 0 {
		a.batchDays = 3
	}
	if a.perDay <= 0 {
		a.perDay = 3
	}
	if a.fallbackHour <= 0 {
		a.fallbackHour = 9
	}
	return a
}

// AllocateDaily is the small-batch policy: it takes up to one article per
// daypart window, assigns each a random minute inside its window on the
// current calendar day, and registers a one-shot publish job for it.
func (a *Allocator) AllocateDaily(ctx context.Context, f ports.ArticleFilter) (int, error) {
	if len(a.windows) == 0 {
		return 0, fmt.Errorf("no daypart windows configured")
	}

	articles, err := a.articles.Pending(ctx, f, len(a.windows))
	if err != nil {
		return 0, fmt.Errorf("load pending articles: %w", err)
	}
	if len(articles) == 0 {
		a.logger.Info("no pending articles to schedule")
		return 0, nil
	}

	day := a.now().In(a.loc)
	used := map[int64]struct{}{}
	scheduled := 0
	for i, art := range articles {
		w := a.windows[i%len(a.windows)]
		fireAt := a.randomSlot(day, w, used)
		if !a.assign(ctx, art, fireAt) {
			continue
		}
		a.register.Schedule(art.ID, fireAt)
		scheduled++
	}

	a.logger.Info("daily allocation complete",
		"requested", len(articles), "scheduled", scheduled, "day", day.Format("2006-01-02"))
	return scheduled, nil
}

// AllocateBatch is the full-batch policy: exactly BatchSize pending articles
// spread PerDay-per-day over BatchDays consecutive days, hours drawn without
// replacement from [8, 21) and sorted ascending within each day so earlier
// articles post earlier. The remainder lands at the fallback hour on the next
// day. With fewer than BatchSize pending articles the batch is deferred
// untouched.
func (a *Allocator) AllocateBatch(ctx context.Context, f ports.ArticleFilter) (BatchOutcome, error) {
	articles, err := a.articles.Pending(ctx, f, a.batchSize)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("load pending articles: %w", err)
	}
	if len(articles) < a.batchSize {
		reason := fmt.Sprintf("only %d of %d pending articles available", len(articles), a.batchSize)
		a.logger.Warn("batch allocation deferred", "reason", reason)
		return BatchOutcome{Deferred: true, Reason: reason}, nil
	}

	times := a.batchTimes(a.now().In(a.loc))
	scheduled := 0
	for i, art := range articles {
		if !a.assign(ctx, art, times[i]) {
			continue
		}
		a.register.Schedule(art.ID, times[i])
		scheduled++
	}

	a.logger.Info("batch allocation complete", "scheduled", scheduled, "days", a.batchDays)
	return BatchOutcome{Scheduled: scheduled}, nil
}

// assign persists the transition and writes the log entry; it reports false
// when the article already left the pending state.
func (a *Allocator) assign(ctx context.Context, art domain.Article, fireAt time.Time) bool {
	ok, err := a.articles.MarkScheduled(ctx, art.ID, fireAt)
	if err != nil {
		a.logger.Error("persist schedule failed", "article", art.ID, "error", err)
		return false
	}
	if !ok {
		a.logger.Debug("article left pending state; skipping", "article", art.ID)
		return false
	}

	entry := domain.PostLogEntry{
		ArticleID: art.ID,
		SiteID:    art.SiteID,
		Step:      domain.StepScheduleAssigned,
		Genre:     art.Genre,
		Keyword:   art.Keyword,
		Title:     art.Title,
		Detail:    fireAt.Format(time.RFC3339),
	}
	if err := a.postlog.Append(ctx, entry); err != nil {
		a.logger.Warn("post log append failed", "article", art.ID, "error", err)
	}

	a.logger.Info("article scheduled", "article", art.ID, "fire_at", fireAt.Format(time.RFC3339))
	return true
}

// randomSlot draws a uniform minute inside the window on the given day.
// Minute-level collisions within one invocation re-roll; once the attempt
// budget is spent the slot probes forward minute by minute from the window
// start, which also covers windows with fewer free minutes than articles.
func (a *Allocator) randomSlot(day time.Time, w Window, used map[int64]struct{}) time.Time {
	span := w.End - w.Start
	if span < 1 {
		span = 1
	}
	for attempt := 0; attempt < slotAttempts; attempt++ {
		hour := w.Start + a.rng.Intn(span)
		minute := a.rng.Intn(60)
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
		if reserveMinute(used, t) {
			return t
		}
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), w.Start, 0, 0, 0, day.Location())
	for !reserveMinute(used, t) {
		t = t.Add(time.Minute)
	}
	return t
}

// batchTimes produces the BatchSize fire times for the full-batch policy.
func (a *Allocator) batchTimes(now time.Time) []time.Time {
	times := make([]time.Time, 0, a.batchSize)
	for day := 0; day < a.batchDays && len(times) < a.batchSize; day++ {
		base := now.AddDate(0, 0, day)
		hours := a.sampleHours(a.perDay)
		for _, h := range hours {
			if len(times) == a.batchSize {
				break
			}
			times = append(times, time.Date(base.Year(), base.Month(), base.Day(), h, 0, 0, 0, now.Location()))
		}
	}

	// Remainder on the following day at the fallback hour; minute offsets
	// keep multiple remainders from sharing a timestamp.
	extraDay := now.AddDate(0, 0, a.batchDays)
	for minute := 0; len(times) < a.batchSize; minute++ {
		times = append(times, time.Date(extraDay.Year(), extraDay.Month(), extraDay.Day(), a.fallbackHour, minute, 0, 0, now.Location()))
	}
	return times
}

// sampleHours draws n distinct hours from [8, 21) and sorts them ascending.
func (a *Allocator) sampleHours(n int) []int {
	span := batchEndHour - batchStartHour
	if n > span {
		n = span
	}
	perm := a.rng.Perm(span)
	hours := make([]int, n)
	for i := 0; i < n; i++ {
		hours[i] = batchStartHour + perm[i]
	}
	sort.Ints(hours)
	return hours
}

func reserveMinute(used map[int64]struct{}, t time.Time) bool {
	key := t.Unix() / 60
	if _, dup := used[key]; dup {
		return false
	}
	used[key] = struct{}{}
	return true
}
