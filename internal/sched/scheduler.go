// Package sched drives the refresh cadence: one synchronous tick at
// start-up so the artifact tree is populated before the listener opens,
// then a fixed-interval loop until the process context is cancelled. Every
// fetcher failure is contained to its feed; a tick always visits the whole
// catalogue.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/monitoring"
	"github.com/banshee-data/propagation.report/internal/timeutil"
)

// DefaultInterval is the refresh period. Upstream sources update on
// multi-minute cadences, so ten minutes keeps artifacts fresh without
// hammering anyone.
const DefaultInterval = 10 * time.Minute

// Scheduler runs the fetcher catalogue on a fixed interval and records
// every attempt in the fetch log.
type Scheduler struct {
	fetchers []feeds.Fetcher
	db       *db.DB
	clock    timeutil.Clock
	interval time.Duration
}

// New returns a Scheduler over fetchers. database may be nil, which
// disables fetch-run records; interval zero means DefaultInterval.
func New(fetchers []feeds.Fetcher, database *db.DB, clock timeutil.Clock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{fetchers: fetchers, db: database, clock: clock, interval: interval}
}

// Run performs one immediate tick, then ticks on the interval until ctx is
// cancelled. An in-flight tick finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunTick(ctx)
	s.RunLoop(ctx)
}

// RunLoop ticks on the interval until ctx is cancelled, without the
// start-up tick. For callers that run the first tick synchronously so the
// artifact tree is populated before the listener opens.
func (s *Scheduler) RunLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	monitoring.Logf("scheduler: running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("scheduler: stopped")
			return
		case <-ticker.C():
			s.RunTick(ctx)
		}
	}
}

// RunTick refreshes every fetcher once, sequentially, under a shared tick
// ID. Failures are logged and recorded but never abort the tick.
func (s *Scheduler) RunTick(ctx context.Context) {
	tick := uuid.New().String()
	monitoring.Logf("scheduler: tick %s: refreshing %d feeds", tick, len(s.fetchers))

	for _, f := range s.fetchers {
		if ctx.Err() != nil {
			monitoring.Logf("scheduler: tick %s cancelled", tick)
			return
		}
		s.runOne(ctx, tick, f)
	}
}

func (s *Scheduler) runOne(ctx context.Context, tick string, f feeds.Fetcher) {
	started := s.clock.Now()
	err := refresh(ctx, f)
	elapsed := s.clock.Since(started)

	detail := ""
	if err != nil {
		detail = err.Error()
		monitoring.Logf("scheduler: %s failed after %s: %v", f.Name(), elapsed, err)
	} else {
		monitoring.Logf("scheduler: %s refreshed in %s", f.Name(), elapsed)
	}

	if s.db == nil {
		return
	}
	run := db.FetchRun{
		TickID:     tick,
		Feed:       f.Name(),
		StartedAt:  started.Unix(),
		DurationMs: elapsed.Milliseconds(),
		OK:         err == nil,
		Detail:     detail,
	}
	if dbErr := s.db.RecordFetchRun(run); dbErr != nil {
		monitoring.Logf("scheduler: fetch log write failed: %v", dbErr)
	}
}

// refresh converts a fetcher panic into an error so one malformed payload
// cannot take the loop down.
func refresh(ctx context.Context, f feeds.Fetcher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Refresh(ctx)
}
