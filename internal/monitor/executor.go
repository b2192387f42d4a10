package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fuomag9/checkpulse/internal/models"
	"github.com/fuomag9/checkpulse/internal/store"
)

const defaultWorkers = 10

// LogAppender receives one line per processed probe
type LogAppender interface {
	Append(id, line string) error
}

// AlertSender delivers a transition alert to a user
type AlertSender interface {
	Send(ctx context.Context, recipient, message string) error
}

// Broadcaster publishes processed results to live subscribers
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// TargetChecker refuses check targets that must not be probed
type TargetChecker interface {
	Check(ctx context.Context, check *models.Check) error
}

// Executor runs probe cycles over every stored check
type Executor struct {
	records store.Store
	logs    LogAppender
	prober  Prober
	alerts  AlertSender
	hub     Broadcaster
	guard   TargetChecker
	workers int
	now     func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

// WithBroadcaster publishes every processed result to hub
func WithBroadcaster(hub Broadcaster) Option {
	return func(e *Executor) { e.hub = hub }
}

// WithTargetGuard checks every target right before it is probed. Refused
// targets are not contacted and classify as down.
func WithTargetGuard(guard TargetChecker) Option {
	return func(e *Executor) { e.guard = guard }
}

// WithWorkers bounds how many checks are processed concurrently
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock replaces the wall clock used for probe timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates a new probe executor
func NewExecutor(records store.Store, logs LogAppender, prober Prober, alerts AlertSender, opts ...Option) *Executor {
	e := &Executor{
		records: records,
		logs:    logs,
		prober:  prober,
		alerts:  alerts,
		workers: defaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is what processing a single check produced
type Result struct {
	Check    *models.Check // updated record
	Outcome  Outcome
	Decision Decision
	Alerted  bool
	AlertErr error // set when a warranted alert could not be delivered
}

// CycleReport summarizes one probe cycle
type CycleReport struct {
	CycleID   string
	Total     int
	Processed int
	Failed    int
}

// RunCycle probes every stored check once. A failure on one check never
// affects the others.
func (e *Executor) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{CycleID: uuid.NewString()}
	logger := log.WithField("cycle", report.CycleID)

	ids, err := e.records.List(ctx, models.CollectionChecks)
	if err != nil {
		logger.Errorf("Could not list checks, skipping cycle: %v", err)
		return report
	}
	if len(ids) == 0 {
		logger.Debug("No checks to process")
		return report
	}
	report.Total = len(ids)

	var processed, failed int64
	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&failed, 1)
					logger.WithField("check", id).Errorf("Check processing panicked: %v", r)
				}
			}()

			if _, err := e.ProcessCheck(ctx, id); err != nil {
				atomic.AddInt64(&failed, 1)
				logger.WithField("check", id).Warnf("Check skipped: %v", err)
				return nil
			}
			atomic.AddInt64(&processed, 1)
			return nil
		})
	}
	_ = g.Wait()

	report.Processed = int(processed)
	report.Failed = int(failed)
	logger.WithFields(log.Fields{
		"total":     report.Total,
		"processed": report.Processed,
		"failed":    report.Failed,
	}).Info("Probe cycle finished")

	return report
}

// ProcessCheck reads, validates, probes and classifies one check, then logs
// the outcome, persists the new state and alerts the owner on a transition.
func (e *Executor) ProcessCheck(ctx context.Context, id string) (*Result, error) {
	logger := log.WithField("check", id)

	raw, err := e.records.Read(ctx, models.CollectionChecks, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read check: %w", err)
	}

	check, err := ValidateCheck(raw)
	if err != nil {
		return nil, err
	}

	outcome := e.probe(ctx, check, logger)
	decision := Classify(check, outcome)
	now := e.now().UnixMilli()

	previous := *check
	entry := LogEntry{
		Check:   &previous,
		Outcome: outcome,
		State:   decision.State,
		Alert:   decision.AlertWarranted,
		Time:    now,
	}
	if line, err := json.Marshal(entry); err != nil {
		logger.Errorf("Failed to encode log entry: %v", err)
	} else if err := e.logs.Append(check.ID, string(line)); err != nil {
		logger.Errorf("Failed to append probe log: %v", err)
	}

	updated := previous
	updated.State = decision.State
	updated.LastChecked = &now
	updated.LastStatus = outcome.ResponseCode

	data, err := NormalizeCheck(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode check: %w", err)
	}
	if err := e.records.Update(ctx, models.CollectionChecks, check.ID, data); err != nil {
		return nil, fmt.Errorf("failed to persist check state: %w", err)
	}

	result := &Result{Check: &updated, Outcome: outcome, Decision: decision}

	if e.hub != nil {
		if err := e.hub.Broadcast("probe", entry); err != nil {
			logger.Debugf("Failed to broadcast probe result: %v", err)
		}
	}

	logger.WithFields(log.Fields{
		"state":  decision.State,
		"status": statusText(outcome),
	}).Debug("Check probed")

	if !decision.AlertWarranted {
		return result, nil
	}

	result.AlertErr = e.alert(ctx, &updated)
	result.Alerted = result.AlertErr == nil
	if result.AlertErr != nil {
		logger.Warnf("Alert not delivered: %v", result.AlertErr)
	} else {
		logger.Infof("Sent %s alert to %s", updated.State, updated.UserPhone)
	}

	return result, nil
}

func (e *Executor) probe(ctx context.Context, check *models.Check, logger *log.Entry) Outcome {
	if e.guard != nil {
		if err := e.guard.Check(ctx, check); err != nil {
			logger.Warnf("Refusing to probe %s: %v", check.Target(), err)
			return FailureOutcome(ForbiddenCause)
		}
	}
	return e.prober.Probe(ctx, check)
}

// ErrOwnerMissing is returned when a check's owning user no longer exists
var ErrOwnerMissing = errors.New("check owner not found")

func (e *Executor) alert(ctx context.Context, check *models.Check) error {
	if _, err := e.records.Read(ctx, models.CollectionUsers, check.UserPhone); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrOwnerMissing, check.UserPhone)
		}
		return fmt.Errorf("failed to look up check owner: %w", err)
	}

	if err := e.alerts.Send(ctx, check.UserPhone, check.AlertMessage()); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

func statusText(o Outcome) string {
	switch {
	case o.Failed():
		return o.Failure.Value
	case o.ResponseCode != nil:
		return fmt.Sprintf("%d", *o.ResponseCode)
	default:
		return "none"
	}
}
