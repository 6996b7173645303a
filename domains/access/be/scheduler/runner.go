package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netpesa/hotspot-billing/domains/access/be/service"
	platformlogging "github.com/netpesa/hotspot-billing/platform/go/logging"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
	"github.com/netpesa/hotspot-billing/platform/go/storage"
)

// ErrRunInProgress is returned when a pass is requested while another one is running.
var ErrRunInProgress = errors.New("reconciliation already running")

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (service.Report, error)
}

// Run records one finished pass.
type Run struct {
	RunID      uuid.UUID        `json:"runId"`
	Trigger    runtrace.Trigger `json:"trigger"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Report     service.Report   `json:"report"`
	Error      string           `json:"error,omitempty"`
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Reconciler Reconciler
	// Archive receives every finished run as JSON. Optional.
	Archive storage.Writer
	Logger  *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Runner serialises reconciliation passes and keeps the most recent result.
type Runner struct {
	reconciler Reconciler
	archive    storage.Writer
	logger     *zap.Logger
	clock      func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *Run
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Reconciler == nil {
		panic("reconciler is required")
	}
	if cfg.Logger == nil {
		panic("logger is required")
	}
	if cfg.Archive == nil {
		cfg.Archive = storage.Discard{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Runner{
		reconciler: cfg.Reconciler,
		archive:    cfg.Archive,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
	}
}

// RunOnce executes a pass at the current time unless one is already running. The
// selection error, if any, is returned alongside the recorded Run.
func (r *Runner) RunOnce(ctx context.Context, trigger runtrace.Trigger, requestID string) (Run, error) {
	if !r.running.TryLock() {
		return Run{}, ErrRunInProgress
	}
	defer r.running.Unlock()

	info := runtrace.New(trigger, requestID)
	base := platformlogging.FromContextOr(ctx, r.logger)
	logger := base.With(info.Fields()...)
	ctx = runtrace.IntoContext(platformlogging.WithLogger(ctx, base), info)

	started := r.clock().UTC()
	report, err := r.reconciler.Reconcile(ctx, started)
	run := Run{
		RunID:      info.RunID,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: r.clock().UTC(),
		Report:     report,
	}
	if err != nil {
		run.Error = err.Error()
		logger.Error("reconciliation pass failed", zap.Error(err))
	}

	r.mu.Lock()
	r.last = &run
	r.mu.Unlock()

	r.archiveRun(context.WithoutCancel(ctx), logger, run)
	return run, err
}

// Last returns the most recent run, if any.
func (r *Runner) Last() (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Run{}, false
	}
	return *r.last, true
}

func (r *Runner) archiveRun(ctx context.Context, logger *zap.Logger, run Run) {
	body, err := json.Marshal(run)
	if err != nil {
		logger.Warn("encode run report", zap.Error(err))
		return
	}
	key := storage.ReportKey(run.RunID, run.StartedAt)
	if err := r.archive.Put(ctx, key, body); err != nil {
		logger.Warn("archive run report", zap.String("key", key), zap.Error(err))
	}
}
