package scheduler

import (
	"context"
	"time"

	"github.com/friendhub/server/config"
	"go.uber.org/zap"
)

// Job names reported to the Recorder.
const (
	JobPresenceSweep = "presence_sweep"
	JobAuditPurge    = "audit_purge"
)

// IdleSweeper marks inactive users offline.
type IdleSweeper interface {
	SweepIdle(ctx context.Context, now time.Time) (int64, error)
}

// AuditPurger deletes audit rows older than a cutoff.
type AuditPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// RegisterMaintenance installs the presence sweep and audit retention jobs.
// A zero interval or retention leaves the matching job out.
func RegisterMaintenance(s *Scheduler, presence config.PresenceConfig, audit config.AuditConfig,
	sweeper IdleSweeper, purger AuditPurger) {
	if sweeper != nil {
		s.AddTicker(JobPresenceSweep, presence.SweepInterval, SweepJob(sweeper, s.logger))
	}
	if purger != nil && audit.Retention > 0 {
		s.AddTicker(JobAuditPurge, audit.PurgeInterval, PurgeJob(purger, audit.Retention, s.logger))
	}
}

// SweepJob wraps an IdleSweeper as a Job.
func SweepJob(sweeper IdleSweeper, logger *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := sweeper.SweepIdle(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("idle users marked offline", zap.Int64("count", n))
		}
		return nil
	}
}

// PurgeJob wraps an AuditPurger as a Job keeping retention worth of rows.
func PurgeJob(purger AuditPurger, retention time.Duration, logger *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := purger.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("audit rows purged", zap.Int64("count", n))
		}
		return nil
	}
}
