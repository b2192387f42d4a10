package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/fuomag9/checkpulse/internal/config"
	"github.com/fuomag9/checkpulse/internal/monitor"
)

// JobKind identifies one of the scheduler's recurring jobs
type JobKind int

const (
	JobProbeCycle JobKind = iota
	JobLogRotation
)

func (k JobKind) String() string {
	switch k {
	case JobProbeCycle:
		return "probe-cycle"
	case JobLogRotation:
		return "log-rotation"
	default:
		return fmt.Sprintf("job-%d", int(k))
	}
}

// CycleRunner runs one probe cycle over all checks
type CycleRunner interface {
	RunCycle(ctx context.Context) monitor.CycleReport
}

// LogRotator compacts probe logs
type LogRotator interface {
	Rotate(ctx context.Context) (RotationReport, error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	chain   cron.Chain
	cycles  CycleRunner
	rotator LogRotator

	probeInterval    time.Duration
	rotationInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// NewScheduler creates a new job scheduler
func NewScheduler(cycles CycleRunner, rotator LogRotator, cfg config.EngineConfig) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	chain := cron.NewChain(cron.Recover(logger))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:             cron.New(cron.WithLogger(logger), cron.WithChain(chain.Then)),
		chain:            chain,
		cycles:           cycles,
		rotator:          rotator,
		probeInterval:    cfg.ProbeInterval,
		rotationInterval: cfg.RotationInterval,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start registers both jobs, runs each once right away, then starts the
// cron loop. Overlapping runs are allowed.
func (s *Scheduler) Start() error {
	schedules := []struct {
		kind     JobKind
		interval time.Duration
	}{
		{JobProbeCycle, s.probeInterval},
		{JobLogRotation, s.rotationInterval},
	}

	for _, sc := range schedules {
		kind := sc.kind
		if sc.interval <= 0 {
			return fmt.Errorf("invalid interval %s for %s", sc.interval, kind)
		}
		spec := fmt.Sprintf("@every %s", sc.interval)
		if _, err := s.cron.AddFunc(spec, func() { s.Run(kind) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", kind, err)
		}
		log.Printf("Scheduled %s %s", kind, spec)
	}

	for _, sc := range schedules {
		sc := sc
		job := s.chain.Then(cron.FuncJob(func() { s.Run(sc.kind) }))
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			job.Run()
		}()
	}

	s.cron.Start()
	log.Println("Job scheduler started")
	return nil
}

// Run executes one job synchronously
func (s *Scheduler) Run(kind JobKind) {
	start := time.Now()

	switch kind {
	case JobProbeCycle:
		report := s.cycles.RunCycle(s.ctx)
		log.WithFields(log.Fields{
			"cycle":    report.CycleID,
			"checks":   report.Total,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("Probe cycle job done")

	case JobLogRotation:
		if _, err := s.rotator.Rotate(s.ctx); err != nil {
			log.Errorf("Log rotation failed: %v", err)
		}

	default:
		log.Warnf("Unknown job kind %d", int(kind))
	}
}

// Stop halts scheduling and waits for running jobs until ctx is done, then
// cancels whatever is still in flight.
func (s *Scheduler) Stop(ctx context.Context) {
	defer s.cancel()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.initial.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Job scheduler stopped")
	case <-ctx.Done():
		log.Warn("Job scheduler stop timed out, cancelling running jobs")
	}
}
