package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/pathway-hq/credits/internal/joblock"
	"github.com/pathway-hq/credits/internal/metrics"
	internalsettings "github.com/pathway-hq/credits/internal/settings"
	log "github.com/sirupsen/logrus"
)

// SchedulerConfig tunes the refresh loop.
type SchedulerConfig struct {
	Interval  time.Duration // Time between ticks.
	BatchSize int           // Users refreshed per tick.
	LockTTL   time.Duration // Lease duration for the cross-replica job lock.
}

// Scheduler runs the monthly refresh for due users on a fixed interval.
// Only the replica holding the job lock does work on a given tick.
type Scheduler struct {
	ledger  *Ledger
	locks   *joblock.Manager
	metrics *metrics.Recorder
	cfg     SchedulerConfig
}

// NewScheduler constructs a refresh scheduler.
func NewScheduler(ledger *Ledger, locks *joblock.Manager, recorder *metrics.Recorder, cfg SchedulerConfig) *Scheduler {
	if ledger == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = internalsettings.DefaultRefreshInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = internalsettings.DefaultRefreshBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if locks == nil {
		locks = joblock.NewManager(nil, nil, nil)
	}
	return &Scheduler{ledger: ledger, locks: locks, metrics: recorder, cfg: cfg}
}

// Run ticks until ctx is done. The first batch runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	log.Infof("refresh scheduler started (interval=%s batch=%d)", s.cfg.Interval, s.cfg.BatchSize)
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, _, errRun := s.RunOnce(ctx); errRun != nil && ctx.Err() == nil {
		log.WithError(errRun).Warn("refresh scheduler: tick failed")
	}
}

// RunOnce refreshes every due user under the job lock, one batch of BatchSize at a time.
// Batches page by user id, so users whose refresh keeps failing never hold back the rest.
// It stops early once most of the lease has been used; the next tick picks up the remainder.
// ran is false when another holder owns the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (report RefreshReport, ran bool, err error) {
	if s == nil {
		return RefreshReport{}, false, fmt.Errorf("credits: scheduler not initialized")
	}
	lease, acquired, errLock := s.locks.TryAcquire(ctx, internalsettings.RefreshJobName, s.cfg.LockTTL)
	if errLock != nil {
		return RefreshReport{}, false, errLock
	}
	if !acquired {
		log.Debug("refresh scheduler: lock held elsewhere, skipping tick")
		return RefreshReport{}, false, nil
	}
	defer lease.Release(context.WithoutCancel(ctx))

	started := time.Now()
	deadline := started.Add(s.cfg.LockTTL * 4 / 5)
	var cursor uint64
	for {
		page, next, errPage := s.ledger.RefreshDueAfter(ctx, cursor, s.cfg.BatchSize)
		if errPage != nil {
			err = errPage
			break
		}
		report.Refreshed = append(report.Refreshed, page.Refreshed...)
		report.Skipped = append(report.Skipped, page.Skipped...)
		report.Failed = append(report.Failed, page.Failed...)
		if next == 0 || ctx.Err() != nil {
			break
		}
		if time.Now().After(deadline) {
			log.WithField("after_user_id", next).Info("refresh scheduler: lease budget used, resuming next tick")
			break
		}
		cursor = next
	}
	s.metrics.RecordRefresh(len(report.Refreshed), len(report.Skipped), len(report.Failed), time.Since(started))
	return report, true, err
}
