// Package scheduler polls for cycles that crossed their boundary and prepares
// or closes them.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kinship/cycle-api/cycle"
	"github.com/kinship/cycle-api/datastore"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/matching"
	"github.com/kinship/cycle-api/models"
)

// DueCycles lists stored cycles that started at or before a cutoff.
type DueCycles interface {
	ListStartedBy(ctx context.Context, cutoff time.Time, limit int) ([]datastore.DueCycle, error)
}

type Clock interface {
	Now() time.Time
	Length() int
}

type Refresher interface {
	Refresh(ctx context.Context, userID, cohortID string, cycleStart time.Time) ([]models.KinshipCandidate, error)
}

// Closer resolves a cycle the member left open past the grace period.
type Closer interface {
	AutoClose(ctx context.Context, userID, cohortID string) (matching.Resolution, error)
}

type Config struct {
	Interval    time.Duration
	Grace       time.Duration
	Concurrency int
	BatchSize   int
}

// Report counts what one sweep did.
type Report struct {
	Scanned   int
	Refreshed int
	Closed    int
	Failed    int
}

type Scheduler struct {
	cycles    DueCycles
	clock     Clock
	pool      Refresher
	snapshots matching.SnapshotStore
	closer    Closer
	cfg       Config
	log       *logger.Logger

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

func NewScheduler(cycles DueCycles, clock Clock, pool Refresher, snapshots matching.SnapshotStore, closer Closer, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		cycles:    cycles,
		clock:     clock,
		pool:      pool,
		snapshots: snapshots,
		closer:    closer,
		cfg:       cfg,
		log:       log.With("service", "CycleScheduler"),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start sweeps once immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.cfg.Interval, "grace", s.cfg.Grace)
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			s.runSweep(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop ends the polling loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.stopped
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		s.log.Warn("sweep failed", "error", err)
		return
	}
	if report.Refreshed+report.Closed+report.Failed > 0 {
		s.log.Info("sweep finished", "scanned", report.Scanned, "refreshed", report.Refreshed, "closed", report.Closed, "failed", report.Failed)
	}
}

// Sweep handles every complete cycle in one batch. A cycle complete for longer
// than the grace period is auto closed, keeping any claimed selection. Any other complete
// cycle gets a ranking for its current start if it has none. Per-user failures
// are counted and left for the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	now := s.clock.Now()
	length := s.clock.Length()
	completeAfter := time.Duration(length-1) * cycle.Day

	due, err := s.cycles.ListStartedBy(ctx, now.Add(-completeAfter), s.cfg.BatchSize)
	if err != nil {
		return Report{}, err
	}

	var refreshed, closed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, d := range due {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			progress := cycle.Advance(d.StartInstant, now, length)
			if !progress.IsComplete {
				return nil
			}
			log := s.log.With("user_id", d.UserID, "cohort", d.CohortID, "cycle_start", d.StartInstant)

			if now.Sub(d.StartInstant) >= completeAfter+s.cfg.Grace {
				if _, err := s.closer.AutoClose(gctx, d.UserID, d.CohortID); err != nil {
					log.Warn("auto close failed", "error", err)
					failed.Add(1)
					return nil
				}
				log.Info("cycle auto closed")
				closed.Add(1)
				return nil
			}

			snap, ok, err := s.snapshots.LatestSnapshot(gctx, d.UserID, d.CohortID)
			if err != nil {
				log.Warn("read ranking snapshot failed", "error", err)
				failed.Add(1)
				return nil
			}
			if ok && snap.CycleStart.Equal(d.StartInstant) {
				return nil
			}
			if _, err := s.pool.Refresh(gctx, d.UserID, d.CohortID, d.StartInstant); err != nil {
				log.Warn("ranking refresh failed", "error", err)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	return Report{
		Scanned:   len(due),
		Refreshed: int(refreshed.Load()),
		Closed:    int(closed.Load()),
		Failed:    int(failed.Load()),
	}, nil
}
