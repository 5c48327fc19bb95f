package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dejobratic/laborders/internal/clock"
)

// DefaultPurgeSchedule runs the purge at the top of every hour.
const DefaultPurgeSchedule = "0 0 * * * *"

// ExpiredKeyPurger is implemented by idempotency stores that need explicit cleanup.
type ExpiredKeyPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// IdempotencyPurgeJob periodically deletes expired idempotency keys.
type IdempotencyPurgeJob struct {
	purger   ExpiredKeyPurger
	schedule string
	clock    clock.Clock
	timeout  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewIdempotencyPurgeJob builds the job. schedule uses the six-field cron
// format with seconds; an empty schedule falls back to DefaultPurgeSchedule.
func NewIdempotencyPurgeJob(purger ExpiredKeyPurger, schedule string, clk clock.Clock, logger *slog.Logger) *IdempotencyPurgeJob {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if clk == nil {
		clk = clock.System()
	}
	return &IdempotencyPurgeJob{
		purger:   purger,
		schedule: schedule,
		clock:    clk,
		timeout:  30 * time.Second,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "idempotency_purge_job"),
	}
}

// Start registers the purge with the scheduler and starts it.
func (j *IdempotencyPurgeJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { _, _ = j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule idempotency purge %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.Info("idempotency purge job started", "schedule", j.schedule)
	return nil
}

// RunOnce performs a single purge pass.
func (j *IdempotencyPurgeJob) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	removed, err := j.purger.PurgeExpired(ctx, j.clock.Now())
	if err != nil {
		j.logger.ErrorContext(ctx, "idempotency purge failed", "error", err)
		return 0, err
	}

	if removed > 0 {
		j.logger.InfoContext(ctx, "purged expired idempotency keys", "removed", removed)
	}
	return removed, nil
}

// Stop stops scheduling and waits for a running purge to finish or ctx to expire.
func (j *IdempotencyPurgeJob) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	j.logger.Info("idempotency purge job stopped")
}
