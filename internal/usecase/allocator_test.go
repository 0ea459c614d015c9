package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

func defaultWindows() []Window {
	return []Window{{Start: 9, End: 11}, {Start: 13, End: 15}, {Start: 18, End: 21}}
}

func seedPending(t *testing.T, store *fakeStore, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	base := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("a%02d", i)
		art := domain.Article{
			ID:        id,
			UserID:    "local",
			SiteID:    "site1",
			Genre:     "AI",
			Keyword:   fmt.Sprintf("keyword %d", i),
			Title:     fmt.Sprintf("title %d", i),
			Content:   "<p>body</p>",
			Status:    domain.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Insert(context.Background(), art); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func newTestAllocator(store *fakeStore, reg *fakeRegister, seed int64, now time.Time) *Allocator {
	return NewAllocator(AllocatorDeps{
		Articles: store,
		PostLog:  store,
		Register: reg,
		Windows:  defaultWindows(),
		Rand:     rand.New(rand.NewSource(seed)),
		Now:      func() time.Time { return now },
		Location: time.UTC,
	})
}

func TestAllocateDaily(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	store := newFakeStore()
	reg := newFakeRegister()
	ids := seedPending(t, store, 5)

	alloc := newTestAllocator(store, reg, 1, now)
	n, err := alloc.AllocateDaily(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateDaily: %v", err)
	}
	if n != 3 {
		t.Fatalf("scheduled = %d, want 3 (one per window)", n)
	}

	windows := defaultWindows()
	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		art := store.article(ids[i])
		if art.Status != domain.StatusScheduled {
			t.Fatalf("article %s status = %s, want scheduled", ids[i], art.Status)
		}
		if art.ScheduledTime == nil {
			t.Fatalf("article %s has no scheduled time", ids[i])
		}
		at := *art.ScheduledTime
		if at.Year() != 2025 || at.Month() != 3 || at.Day() != 10 {
			t.Errorf("article %s scheduled on %v, want today", ids[i], at)
		}
		w := windows[i]
		if at.Hour() < w.Start || at.Hour() >= w.End {
			t.Errorf("article %s hour = %d, want in [%d, %d)", ids[i], at.Hour(), w.Start, w.End)
		}
		key := at.Unix() / 60
		if seen[key] {
			t.Errorf("article %s shares a minute slot with another article", ids[i])
		}
		seen[key] = true
		if _, ok := reg.scheduled[ids[i]]; !ok {
			t.Errorf("article %s has no registered job", ids[i])
		}
	}

	// Articles beyond one-per-window stay pending.
	for _, id := range ids[3:] {
		if got := store.article(id).Status; got != domain.StatusPending {
			t.Errorf("article %s status = %s, want pending", id, got)
		}
	}

	if logs := store.logSteps(domain.StepScheduleAssigned); len(logs) != 3 {
		t.Errorf("schedule log entries = %d, want 3", len(logs))
	}
}

func TestAllocateDailyFewerThanWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	store := newFakeStore()
	reg := newFakeRegister()
	ids := seedPending(t, store, 2)

	alloc := newTestAllocator(store, reg, 7, now)
	n, err := alloc.AllocateDaily(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateDaily: %v", err)
	}
	if n != 2 {
		t.Fatalf("scheduled = %d, want 2", n)
	}
	for _, id := range ids {
		if got := store.article(id).Status; got != domain.StatusScheduled {
			t.Errorf("article %s status = %s, want scheduled", id, got)
		}
	}
}

func TestAllocateDailyEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	alloc := newTestAllocator(store, newFakeRegister(), 1, time.Now())
	n, err := alloc.AllocateDaily(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateDaily: %v", err)
	}
	if n != 0 {
		t.Fatalf("scheduled = %d, want 0", n)
	}
}

func TestAllocateBatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	store := newFakeStore()
	reg := newFakeRegister()
	ids := seedPending(t, store, 10)

	alloc := newTestAllocator(store, reg, 42, now)
	out, err := alloc.AllocateBatch(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateBatch: %v", err)
	}
	if out.Deferred {
		t.Fatalf("batch deferred unexpectedly: %s", out.Reason)
	}
	if out.Scheduled != 10 {
		t.Fatalf("scheduled = %d, want 10", out.Scheduled)
	}

	times := make([]time.Time, len(ids))
	for i, id := range ids {
		art := store.article(id)
		if art.Status != domain.StatusScheduled || art.ScheduledTime == nil {
			t.Fatalf("article %s not scheduled", id)
		}
		times[i] = *art.ScheduledTime
	}

	// 3 per day over 3 days, remainder on day 4 at the fallback hour.
	for i, at := range times {
		wantDay := 10 + i/3
		if i == 9 {
			wantDay = 13
		}
		if at.Day() != wantDay {
			t.Errorf("article %d on day %d, want %d", i, at.Day(), wantDay)
		}
		if i == 9 {
			if at.Hour() != 9 {
				t.Errorf("remainder hour = %d, want 9", at.Hour())
			}
			continue
		}
		if at.Hour() < 8 || at.Hour() >= 21 {
			t.Errorf("article %d hour = %d, want in [8, 21)", i, at.Hour())
		}
		if i%3 != 0 && !times[i-1].Before(at) {
			t.Errorf("article %d at %v not after article %d at %v", i, at, i-1, times[i-1])
		}
	}

	if len(reg.scheduled) != 10 {
		t.Errorf("registered jobs = %d, want 10", len(reg.scheduled))
	}
}

func TestAllocateBatchDeferred(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	store := newFakeStore()
	reg := newFakeRegister()
	ids := seedPending(t, store, 7)

	alloc := newTestAllocator(store, reg, 42, now)
	out, err := alloc.AllocateBatch(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateBatch: %v", err)
	}
	if !out.Deferred {
		t.Fatal("batch with 7 pending articles should defer")
	}
	if out.Scheduled != 0 {
		t.Errorf("scheduled = %d, want 0", out.Scheduled)
	}
	for _, id := range ids {
		if got := store.article(id).Status; got != domain.StatusPending {
			t.Errorf("article %s mutated to %s during deferred batch", id, got)
		}
	}
	if len(reg.scheduled) != 0 {
		t.Errorf("registered jobs = %d, want 0", len(reg.scheduled))
	}
	if logs := store.logSteps(domain.StepScheduleAssigned); len(logs) != 0 {
		t.Errorf("schedule log entries = %d, want 0", len(logs))
	}
}

func TestAllocateDailySkipsStolenArticle(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	store := newFakeStore()
	reg := newFakeRegister()
	ids := seedPending(t, store, 3)

	// Flip one article out of pending behind the allocator's back.
	if ok, err := store.MarkFailed(context.Background(), ids[1], domain.StatusPending); err != nil || !ok {
		t.Fatalf("MarkFailed: ok=%v err=%v", ok, err)
	}
	// Pending() no longer returns it, so only two get scheduled.
	alloc := newTestAllocator(store, reg, 3, now)
	n, err := alloc.AllocateDaily(context.Background(), ports.ArticleFilter{})
	if err != nil {
		t.Fatalf("AllocateDaily: %v", err)
	}
	if n != 2 {
		t.Fatalf("scheduled = %d, want 2", n)
	}
	if got := store.article(ids[1]).Status; got != domain.StatusFailed {
		t.Errorf("article %s status = %s, want failed", ids[1], got)
	}
}

func TestRandomSlotExhaustedWindow(t *testing.T) {
	t.Parallel()

	alloc := newTestAllocator(newFakeStore(), newFakeRegister(), 5, time.Now())
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	w := Window{Start: 9, End: 10}
	used := map[int64]struct{}{}

	seen := map[int64]bool{}
	for i := 0; i < 60; i++ {
		at := alloc.randomSlot(day, w, used)
		key := at.Unix() / 60
		if seen[key] {
			t.Fatalf("duplicate slot %v on draw %d", at, i)
		}
		seen[key] = true
	}
	// All 60 minutes of the window are taken; the probe walks past its end
	// rather than looping.
	at := alloc.randomSlot(day, w, used)
	if at.Hour() < 10 {
		t.Fatalf("overflow slot %v should fall past the window", at)
	}
}
