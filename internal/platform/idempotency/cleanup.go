package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired records.
type Sweeper struct {
	Store     Store
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Run blocks until ctx is cancelled.
func (s Sweeper) Run(ctx context.Context) {
	if s.Store == nil || s.Interval <= 0 {
		return
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, clock(), logger)
		}
	}
}

func (s Sweeper) sweep(ctx context.Context, now time.Time, logger *zap.Logger) {
	removed, err := s.Store.CleanupExpired(ctx, now, s.BatchSize)
	if err != nil {
		logger.Warn("idempotency cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Debug("idempotency records expired", zap.Int("removed", removed))
	}
}
