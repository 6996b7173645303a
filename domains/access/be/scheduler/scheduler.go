package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
)

// DefaultSchedule runs a pass every five minutes.
const DefaultSchedule = "@every 5m"

// Scheduler triggers the Runner on a cron schedule.
type Scheduler struct {
	runner *Runner
	logger *zap.Logger
	cron   *cron.Cron

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(runner *Runner, logger *zap.Logger) *Scheduler {
	if runner == nil {
		panic("runner is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	l := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

// Start registers the pass under schedule and starts the cron loop. Passes started by the
// schedule observe ctx; cancelling it or calling Stop keeps new grants from starting.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(schedule, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("register schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reconciliation scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop cancels the running pass at its next grant boundary and waits for it to return,
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunOnce(ctx, runtrace.TriggerSchedule, ""); errors.Is(err, ErrRunInProgress) {
		s.logger.Info("scheduled pass skipped: another pass is running")
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
