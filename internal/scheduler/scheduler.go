// Package scheduler wires up the cron job that periodically triggers a
// collection cycle.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobmate/jobfeed-service/internal/logger"
	"jobmate/jobfeed-service/internal/orchestrator"
)

// ReasonScheduled is the trigger reason used for every tick.
const ReasonScheduled = "scheduled"

// DefaultInterval is how often a cycle fires when no interval is configured.
const DefaultInterval = 12 * time.Hour

// Trigger is the part of the orchestrator the scheduler drives.
type Trigger interface {
	TriggerRun(ctx context.Context, reason string) orchestrator.RunResult
}

// Scheduler wraps robfig/cron. It does no locking of its own: overlapping
// ticks are turned away by the orchestrator's single-flight guard, and
// skipped ticks are not made up.
type Scheduler struct {
	cron       *cron.Cron
	trigger    Trigger
	interval   time.Duration
	runOnStart bool
	log        logger.Logger

	initial sync.WaitGroup
}

// New creates a Scheduler that fires every interval.
func New(trigger Trigger, interval time.Duration, runOnStart bool, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(logger.CronLogger{L: log})),
		trigger:    trigger,
		interval:   interval,
		runOnStart: runOnStart,
		log:        log,
	}
}

// Start registers the job and starts the scheduler. With runOnStart it also
// fires one cycle immediately so the artifact is populated without waiting
// for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval < time.Second {
		return fmt.Errorf("interval %s is below cron resolution", s.interval)
	}
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.tick(ctx)
	}))

	s.cron.Start()
	s.log.Info("Scheduler started", logger.Duration("interval", s.interval))

	if s.runOnStart {
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			s.tick(ctx)
		}()
	}
	return nil
}

// Stop halts future ticks. The returned context is done once every tick that
// is currently executing, including the start-up run, has returned.
func (s *Scheduler) Stop() context.Context {
	cronCtx := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.initial.Wait()
		cancel()
	}()
	s.log.Info("Scheduler stopped")
	return ctx
}

func (s *Scheduler) tick(ctx context.Context) {
	res := s.trigger.TriggerRun(ctx, ReasonScheduled)
	switch res.Outcome {
	case orchestrator.OutcomeSkipped:
		s.log.Info("Scheduled cycle skipped, another cycle is running")
	case orchestrator.OutcomeFailed:
		s.log.Warn("Scheduled cycle failed", logger.String("run_id", res.RunID), logger.Error(res.Err))
	default:
		s.log.Info("Scheduled cycle finished",
			logger.String("run_id", res.RunID),
			logger.Int("records", res.RecordCount),
		)
	}
}
