package eventrecord

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired records.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Janitor enforces record TTLs by purging on a fixed interval.
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewJanitor creates a janitor. interval defaults to one minute.
func NewJanitor(purger Purger, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		purger:   purger,
		interval: interval,
		logger:   logger.With(slog.String("component", "eventrecord-janitor")),
		now:      time.Now,
	}
}

// Run purges until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge and returns the number of rows removed.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	n, err := j.purger.PurgeExpired(ctx, j.now())
	if err != nil {
		j.logger.ErrorContext(ctx, "purge failed", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		j.logger.DebugContext(ctx, "purged expired event records", slog.Int64("count", n))
	}
	return n
}
