package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/config"
	"github.com/fuomag9/checkpulse/internal/monitor"
)

type countingRunner struct {
	calls atomic.Int32
	panic bool
}

func (c *countingRunner) RunCycle(ctx context.Context) monitor.CycleReport {
	c.calls.Add(1)
	if c.panic {
		panic("probe cycle exploded")
	}
	return monitor.CycleReport{CycleID: "test"}
}

type countingRotator struct {
	calls atomic.Int32
}

func (c *countingRotator) Rotate(ctx context.Context) (RotationReport, error) {
	c.calls.Add(1)
	return RotationReport{NothingToRotate: true}, nil
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		ProbeInterval:    time.Hour,
		RotationInterval: 24 * time.Hour,
		Workers:          2,
	}
}

func TestSchedulerRunsJobsImmediately(t *testing.T) {
	t.Parallel()

	cycles := &countingRunner{}
	rotator := &countingRotator{}
	s := NewScheduler(cycles, rotator, engineConfig())

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return cycles.calls.Load() == 1 && rotator.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerRecoversFromPanics(t *testing.T) {
	t.Parallel()

	cycles := &countingRunner{panic: true}
	rotator := &countingRotator{}
	s := NewScheduler(cycles, rotator, engineConfig())

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return cycles.calls.Load() == 1 && rotator.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	cycles := &countingRunner{}
	rotator := &countingRotator{}
	s := NewScheduler(cycles, rotator, engineConfig())

	s.Run(JobProbeCycle)
	s.Run(JobProbeCycle)
	s.Run(JobLogRotation)
	s.Run(JobKind(42))

	require.Equal(t, int32(2), cycles.calls.Load())
	require.Equal(t, int32(1), rotator.calls.Load())
	require.Equal(t, "probe-cycle", JobProbeCycle.String())
	require.Equal(t, "log-rotation", JobLogRotation.String())
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	t.Parallel()

	cfg := engineConfig()
	cfg.ProbeInterval = 0
	s := NewScheduler(&countingRunner{}, &countingRotator{}, cfg)
	require.Error(t, s.Start())
}

func TestSchedulerRecoversFromPanicsOnTicks(t *testing.T) {
	t.Parallel()

	cycles := &countingRunner{panic: true}
	cfg := engineConfig()
	cfg.ProbeInterval = time.Second
	s := NewScheduler(cycles, &countingRotator{}, cfg)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return cycles.calls.Load() >= 3
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
