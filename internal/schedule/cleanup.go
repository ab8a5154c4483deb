package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/collabtask/authcore/internal/service"
)

const cleanupLockKey = "schedule:token_cleanup"

// CleanupJob deletes token rows whose session expired past the retention
// window. It runs on a fixed interval; the distributed lock keeps exactly
// one replica sweeping per tick. Failures are logged and retried on the
// next scheduled run, never escalated.
type CleanupJob struct {
	tokens   *service.TokenService
	locks    *service.RedisLockManager
	interval time.Duration
	lease    time.Duration
	logger   *slog.Logger
}

func NewCleanupJob(tokens *service.TokenService, locks *service.RedisLockManager, interval, lease time.Duration, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tokens:   tokens,
		locks:    locks,
		interval: interval,
		lease:    lease,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled.
func (j *CleanupJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.logger.Info("token cleanup scheduler started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("token cleanup scheduler stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. With no lock manager configured (single
// replica deployments, tests) it sweeps unconditionally.
func (j *CleanupJob) RunOnce(ctx context.Context) {
	if j.locks != nil {
		guard, err := j.locks.TryAcquire(ctx, cleanupLockKey, 0, j.lease)
		if err != nil {
			if errors.Is(err, service.ErrLockTimeout) {
				j.logger.Debug("token cleanup skipped, another replica holds the lock")
				return
			}
			j.logger.Error("token cleanup lock unavailable", "error", err)
			return
		}
		defer func() {
			if err := guard.Release(ctx); err != nil {
				j.logger.Warn("token cleanup lock release failed", "error", err)
			}
		}()
	}

	count, err := j.tokens.Cleanup(ctx)
	if err != nil {
		j.logger.Error("token cleanup failed, will retry next run", "error", err)
		return
	}
	j.logger.Info("token cleanup finished", "deleted", count)
}
