package core

// scheduler.go runs background maintenance for run records.
//
// The retention job deletes run records older than the configured number of
// days. It runs once at start and then every CheckInterval until ctx is
// cancelled. A failed purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the run record purge.
type RetentionConfig struct {
	RunRetentionDays int           // 0 disables the purge
	CheckInterval    time.Duration // default: 24h
}

// StartRetentionScheduler blocks, purging expired run records periodically.
// Call it in its own goroutine.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.RunRetentionDays <= 0 {
		slog.Info("retention scheduler disabled")
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}

	slog.Info("retention scheduler started",
		"run_retention_days", cfg.RunRetentionDays,
		"interval", cfg.CheckInterval.String(),
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()
	purged, err := s.PurgeExpiredRuns(ctx, cfg.RunRetentionDays)
	if err != nil {
		slog.Error("run purge failed", "error", err)
		return
	}
	slog.Info("purged expired run records",
		"records_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// PurgeExpiredRuns deletes run records created more than days days ago.
func (s *Service) PurgeExpiredRuns(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	return s.store.PurgeRuns(ctx, cutoff)
}
