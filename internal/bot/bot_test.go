package bot

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/neogem/internal/bot/tasks"
	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/logger"
)

type blockingPoller struct {
	started chan struct{}
}

func (p *blockingPoller) Start(ctx context.Context) {
	close(p.started)
	<-ctx.Done()
}

type returningPoller struct{}

func (returningPoller) Start(context.Context) {}

func TestRunStopsOnShutdown(t *testing.T) {
	t.Parallel()

	poller := &blockingPoller{started: make(chan struct{})}
	b := NewBot(logger.Discard(), nil, poller, nil, nil)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	<-poller.started
	b.Shutdown()
	b.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestRunAfterShutdownReturnsImmediately(t *testing.T) {
	t.Parallel()

	b := NewBot(logger.Discard(), nil, &blockingPoller{started: make(chan struct{})}, nil, nil)
	b.Shutdown()
	require.NoError(t, b.Run(context.Background()))
}

func TestRunReportsUnexpectedListenerExit(t *testing.T) {
	t.Parallel()

	b := NewBot(logger.Discard(), nil, returningPoller{}, nil, nil)
	require.Error(t, b.Run(context.Background()))
}

func TestSchedulerSchedulesEnabledTasks(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"enabled":   {Enabled: true, Schedule: "0 0 3 * * *"},
		"disabled":  {Enabled: false, Schedule: "0 0 3 * * *"},
		"unknown":   {Enabled: true, Schedule: "0 0 3 * * *"},
		"no_sched":  {Enabled: true},
		"bad_sched": {Enabled: true, Schedule: "not a cron"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"enabled":   noop,
		"disabled":  noop,
		"no_sched":  noop,
		"bad_sched": noop,
	}

	s, err := NewScheduler(logger.Discard(), cfg, taskMap)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	require.Error(t, s.Start(), "second start must fail")

	jobs := s.Jobs()
	slices.Sort(jobs)
	require.Equal(t, []string{"enabled"}, jobs)
}

func TestSchedulerStopWhenNotRunning(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(logger.Discard(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}
