package services

import (
	"context"
	"errors"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// Pruner drops stale entries from an in-process store.
type Pruner interface {
	Prune(now time.Time) int
}

// ReapStats counts what one pass removed.
type ReapStats struct {
	Challenges   int64
	Sessions     int64
	Suspicious   int64
	CacheEntries int
}

// Reaper periodically removes expired state. Decisions use the injected
// clock; the tick source can be replaced in tests.
type Reaper struct {
	challenges ports.ChallengeRepository
	sessions   ports.SessionRepository
	suspicious ports.SuspiciousRepository
	stores     []Pruner
	interval   time.Duration
	clock      ports.Clock
	log        logging.Logger

	SessionRetention    time.Duration
	SuspiciousRetention time.Duration

	newTicker func(time.Duration) (<-chan time.Time, func())
}

func NewReaper(challenges ports.ChallengeRepository, sessions ports.SessionRepository, suspicious ports.SuspiciousRepository, stores []Pruner, interval time.Duration, clock ports.Clock, log logging.Logger) *Reaper {
	return &Reaper{
		challenges:          challenges,
		sessions:            sessions,
		suspicious:          suspicious,
		stores:              stores,
		interval:            interval,
		clock:               clock,
		log:                 log,
		SessionRetention:    48 * time.Hour,
		SuspiciousRetention: 24 * time.Hour,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// RunOnce performs a single cleanup pass. Every step runs even if an earlier one failed.
func (r *Reaper) RunOnce(ctx context.Context) (ReapStats, error) {
	var stats ReapStats
	var errs []error
	now := r.clock.Now()

	n, err := r.challenges.DeleteExpired(ctx, now.UnixMilli())
	stats.Challenges = n
	errs = append(errs, err)

	n, err = r.sessions.DeleteBefore(ctx, now.Add(-r.SessionRetention))
	stats.Sessions = n
	errs = append(errs, err)

	n, err = r.suspicious.DeleteBefore(ctx, now.Add(-r.SuspiciousRetention))
	stats.Suspicious = n
	errs = append(errs, err)

	for _, s := range r.stores {
		stats.CacheEntries += s.Prune(now)
	}
	return stats, errors.Join(errs...)
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	tick, stop := r.newTicker(r.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			stats, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Error(ctx, "reaper pass failed", "error", err)
				continue
			}
			r.log.Debug(ctx, "reaper pass",
				"challenges", stats.Challenges,
				"sessions", stats.Sessions,
				"suspicious", stats.Suspicious,
				"cache_entries", stats.CacheEntries,
			)
		}
	}
}
