package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/jobs"
)

type fakePurger struct {
	mu      sync.Mutex
	calls   []time.Time
	removed int64
	err     error
}

func (p *fakePurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, before)
	return p.removed, p.err
}

func (p *fakePurger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyPurgeJobRunOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("purges keys expired before now", func(t *testing.T) {
		purger := &fakePurger{removed: 3}
		job := jobs.NewIdempotencyPurgeJob(purger, "", clock.Fixed(now), discardLogger())

		removed, err := job.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		assert.Equal(t, []time.Time{now}, purger.calls)
	})

	t.Run("returns purge errors", func(t *testing.T) {
		purgeErr := errors.New("db down")
		job := jobs.NewIdempotencyPurgeJob(&fakePurger{err: purgeErr}, "", clock.Fixed(now), discardLogger())

		_, err := job.RunOnce(context.Background())
		assert.ErrorIs(t, err, purgeErr)
	})
}

func TestIdempotencyPurgeJobSchedule(t *testing.T) {
	t.Run("rejects an invalid schedule", func(t *testing.T) {
		job := jobs.NewIdempotencyPurgeJob(&fakePurger{}, "not a schedule", nil, discardLogger())
		assert.Error(t, job.Start())
	})

	t.Run("runs on schedule until stopped", func(t *testing.T) {
		purger := &fakePurger{}
		job := jobs.NewIdempotencyPurgeJob(purger, "* * * * * *", nil, discardLogger())
		require.NoError(t, job.Start())

		assert.Eventually(t, func() bool { return purger.callCount() > 0 }, 3*time.Second, 50*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		job.Stop(ctx)
	})
}
