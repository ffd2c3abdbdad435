package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestJobsUseInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	sched, mocks := newTestScheduler(t, Config{}, clk)

	var deliverAt, rolloverAt time.Time
	mocks.webhook.deliverFunc = func(_ context.Context, at time.Time, _ int) (int, error) {
		deliverAt = at
		return 0, nil
	}
	mocks.aiUsage.rolloverFunc = func(_ context.Context, at time.Time, _ int) (int, error) {
		rolloverAt = at
		return 0, nil
	}

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, now, deliverAt)
	require.Equal(t, now, rolloverAt)
}

func TestLeadScoreJobUsesStalenessCutoff(t *testing.T) {
	now := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	sched, mocks := newTestScheduler(t, Config{ScoreStaleAfter: 48 * time.Hour}, clk)

	var cutoff time.Time
	mocks.lead.recalcFunc = func(_ context.Context, at time.Time, _ int) (int, error) {
		cutoff = at
		return 0, nil
	}

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, now.Add(-48*time.Hour), cutoff)
}

func TestEmailRefreshJobPassesWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	sched, mocks := newTestScheduler(t, Config{TokenRefreshWindow: 30 * time.Minute}, clk)

	var window time.Duration
	mocks.email.refreshFunc = func(_ context.Context, _ time.Time, w time.Duration, _ int) (int, error) {
		window = w
		return 0, nil
	}

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 30*time.Minute, window)
}
