package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/starpipe/logger"
)

// RunHandlerFunc receives the outcome of each scheduled run.
type RunHandlerFunc func(status RunStatus, err error)

// Scheduler starts a run of the workflow at the top of every interval, e.g. hourly on the hour.
// Runs never overlap: an interval that elapses while a run is active is skipped.
type Scheduler struct {
	log      logger.Logger
	runner   *Runner
	interval time.Duration
	clock    clockwork.Clock
	handler  RunHandlerFunc
}

func WithSchedulerClock(clock clockwork.Clock) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithRunHandler(fn RunHandlerFunc) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.handler = fn
	}
}

func NewScheduler(log logger.Logger, runner *Runner, interval time.Duration, options ...func(s *Scheduler)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule interval must be positive, got %v", interval)
	}
	s := &Scheduler{
		log:      log,
		runner:   runner,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		handler:  func(RunStatus, error) {},
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// NextRun returns the first interval boundary after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return now.Truncate(s.interval).Add(s.interval)
}

// Run blocks, starting a workflow run at each interval boundary until ctx is cancelled.
// With runNow set, the first run starts immediately.
func (s *Scheduler) Run(ctx context.Context, runNow bool) error {
	if runNow {
		s.runOnce(ctx)
	}
	for {
		now := s.clock.Now()
		next := s.NextRun(now)
		s.log.Info("Next workflow run scheduled at ", next.Format(time.RFC3339))
		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Scheduler stopped")
			return nil
		case <-timer.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	status, err := s.runner.Run(ctx)
	if err != nil { // if the run failed...
		s.log.Error(err)
	}
	s.handler(status, err)
}
