// Package schedule owns the in-process job register: one-shot publish
// timers keyed by article id, plus the recurring daily allocation tick and
// the periodic recovery sweep.
//
// The register holds only (article id, fire time, callback) triples. It is
// not durable: after a restart the whole table is rebuilt from articles
// persisted in the scheduled state, and the recovery sweep picks up any
// fire time missed while the process was down.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// jobKeyPrefix derives the job key from the article id. One job per
// article: re-registering the same key is a no-op, which is what prevents
// duplicate publishing when allocation runs twice over the same article
// before its job fires.
const jobKeyPrefix = "post_"

// dailySpec fires the allocation callback at 00:00 in the register's
// timezone.
const dailySpec = "0 0 * * *"

// Config controls the register's cadence.
type Config struct {
	Location      *time.Location
	SweepInterval time.Duration
}

// Callbacks are the units of work the register invokes. Each receives the
// register's base context; all other dependencies are bound at construction
// of the callback itself, never looked up ambiently.
type Callbacks struct {
	// Fire runs the publish step for one article when its timer elapses.
	Fire func(ctx context.Context, articleID string)
	// Daily runs the allocator once per calendar day at midnight.
	Daily func(ctx context.Context)
	// Sweep runs the recovery sweep on the configured interval.
	Sweep func(ctx context.Context)
}

// Register maps future fire times to one-shot publish invocations.
// Construct one per process (or per test) and start it once the article
// store is ready.
type Register struct {
	logger     *slog.Logger
	loc        *time.Location
	sweepEvery time.Duration
	cb         Callbacks

	mu      sync.Mutex
	cron    *cron.Cron
	timers  map[string]*time.Timer
	fireAt  map[string]time.Time
	ver     map[string]uint64
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// New builds a stopped register.
func New(cfg Config, cb Callbacks, logger *slog.Logger) *Register {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Register{
		logger:     logger,
		loc:        cfg.Location,
		sweepEvery: cfg.SweepInterval,
		cb:         cb,
		timers:     map[string]*time.Timer{},
		fireAt:     map[string]time.Time{},
		ver:        map[string]uint64{},
	}
}

// Schedule registers a one-shot publish job for the article. It reports
// false when a job for the same article already exists; that duplicate is
// silently ignored.
func (r *Register) Schedule(articleID string, at time.Time) bool {
	key := jobKeyPrefix + articleID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fireAt[key]; exists {
		r.logger.Debug("job already registered", "article", articleID)
		return false
	}

	ver := r.ver[key] + 1
	r.ver[key] = ver
	r.fireAt[key] = at.In(r.loc)

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	r.timers[key] = time.AfterFunc(delay, func() {
		r.fired(key, articleID, ver)
	})

	r.logger.Debug("job registered", "article", articleID, "fire_at", at.Format(time.RFC3339))
	return true
}

// Cancel removes a pending job; it reports false when no job exists.
func (r *Register) Cancel(articleID string) bool {
	key := jobKeyPrefix + articleID

	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, key)
	delete(r.fireAt, key)
	r.ver[key]++ // invalidate a callback already in flight
	r.logger.Debug("job cancelled", "article", articleID)
	return true
}

// Pending returns the number of registered one-shot jobs.
func (r *Register) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fireAt)
}

// fired is the timer callback. The version check discards callbacks whose
// job was cancelled after the timer had already been handed to the runtime.
func (r *Register) fired(key, articleID string, ver uint64) {
	r.mu.Lock()
	if r.ver[key] != ver {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)
	delete(r.fireAt, key)
	ctx := r.baseCtx
	r.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if r.cb.Fire != nil {
		r.cb.Fire(ctx, articleID)
	}
}

// Start launches the recurring daily allocation and the periodic sweep.
// Call it exactly once, after the article store is ready; one-shot jobs may
// be registered before or after.
func (r *Register) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("register already started")
	}

	r.baseCtx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New(cron.WithLocation(r.loc))

	if r.cb.Daily != nil {
		if _, err := r.cron.AddFunc(dailySpec, func() { r.cb.Daily(r.baseCtx) }); err != nil {
			return fmt.Errorf("register daily job: %w", err)
		}
	}
	if r.cb.Sweep != nil && r.sweepEvery > 0 {
		spec := fmt.Sprintf("@every %s", r.sweepEvery)
		if _, err := r.cron.AddFunc(spec, func() { r.cb.Sweep(r.baseCtx) }); err != nil {
			return fmt.Errorf("register sweep job: %w", err)
		}
	}

	r.cron.Start()
	r.started = true
	r.logger.Info("job register started", "tz", r.loc.String(), "sweep_every", r.sweepEvery.String())
	return nil
}

// Stop halts the recurring jobs and drops all pending timers. In-flight
// callbacks run to completion.
func (r *Register) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.cron.Stop()
	r.cancel()
	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
		delete(r.fireAt, key)
		r.ver[key]++
	}
	r.started = false
	r.logger.Info("job register stopped")
}
