package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// RunPeriodic runs a pass every interval until ctx is cancelled. Ticks that
// find a pass already running are skipped.
func RunPeriodic(ctx context.Context, s Syncer, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("periodic sync: started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic sync: stopped")
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				if IsInProgress(err) {
					logger.Debug("periodic sync: skipped, pass running")
					continue
				}
				if ctx.Err() == nil {
					logger.Warn("periodic sync: failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}
