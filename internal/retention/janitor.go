// Package retention implements the data retention policy. A background
// janitor periodically removes aged context entries, flushes idle
// sessions, sweeps expired cache entries, and trims the learning
// quality trend.
//
// Persistent-scope context entries are never removed. The janitor
// respects context cancellation for graceful shutdown, and a failing
// cycle is logged and retried on the next tick rather than stopping
// the loop.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/contracts"
)

// DefaultRetentionDays is the context entry retention window.
const DefaultRetentionDays = 30

// DefaultInterval is how often the janitor runs.
const DefaultInterval = 6 * time.Hour

// maxTrendPoints caps the learning engine's rolling trend history.
const maxTrendPoints = 1000

// CacheSweeper is implemented by the orchestrator; the janitor only
// needs the sweep.
type CacheSweeper interface {
	SweepCaches() int
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	EntriesRemoved int
	SessionsEnded  int
	CacheSwept     int
	Duration       time.Duration
}

// Janitor runs the retention loop.
type Janitor struct {
	contextMgr contracts.ContextService
	learning   contracts.LearningService
	sweeper    CacheSweeper

	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	running   bool
}

// NewJanitor creates a janitor. Zero values fall back to the defaults.
func NewJanitor(ctxMgr contracts.ContextService, learn contracts.LearningService, sweeper CacheSweeper, retentionDays int, interval time.Duration) *Janitor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		contextMgr: ctxMgr,
		learning:   learn,
		sweeper:    sweeper,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background loop. The first cycle runs after one
// full interval, not at startup.
func (j *Janitor) Start(ctx context.Context) {
	if j.running {
		return
	}
	j.running = true

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := j.RunCycle(ctx)
				log.Info().
					Int("entries_removed", stats.EntriesRemoved).
					Int("sessions_ended", stats.SessionsEnded).
					Int("cache_swept", stats.CacheSwept).
					Dur("took", stats.Duration).
					Msg("Retention cycle complete")
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("Retention janitor started")
}

// Stop halts the loop.
func (j *Janitor) Stop() {
	if j.running {
		close(j.stopCh)
		j.running = false
	}
}

// RunCycle executes one retention pass immediately.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	stats := CycleStats{}

	removed, err := j.contextMgr.CleanupOlderThan(ctx, j.retention)
	if err != nil {
		log.Warn().Err(err).Msg("Retention: context cleanup failed")
	}
	stats.EntriesRemoved = removed

	if sweeper, ok := j.contextMgr.(interface {
		SweepIdleSessions(ctx context.Context) int
	}); ok {
		stats.SessionsEnded = sweeper.SweepIdleSessions(ctx)
	}

	if j.sweeper != nil {
		stats.CacheSwept = j.sweeper.SweepCaches()
	}
	if j.learning != nil {
		j.learning.TrimTrends(maxTrendPoints)
	}

	stats.Duration = time.Since(start)
	return stats
}
