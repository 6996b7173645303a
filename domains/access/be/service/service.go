package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tenants "github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	platformlogging "github.com/netpesa/hotspot-billing/platform/go/logging"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
)

// Errors returned by the service layer.
var (
	// ErrSelection wraps failures of the expired-grant query. The pass performs no side effects.
	ErrSelection = errors.New("select expired grants")
	// ErrGrantChanged is returned by Repository.Deactivate when the grant was renewed or
	// deactivated after selection.
	ErrGrantChanged = errors.New("grant changed since selection")
	// ErrNotFound is returned when a grant does not exist.
	ErrNotFound = errors.New("grant not found")
)

// Repository abstracts persistence of grants and devices.
type Repository interface {
	SelectExpired(ctx context.Context, now time.Time) ([]Grant, error)
	ActiveDevices(ctx context.Context, grantID uuid.UUID) ([]Device, error)
	// Deactivate applies DeactivateInput atomically and returns how many devices flipped
	// to inactive. It returns ErrGrantChanged, with nothing written, when the grant no
	// longer matches the expiry predicate.
	Deactivate(ctx context.Context, input DeactivateInput) (int, error)
}

// TenantDirectory resolves a tenant with its routers and plan.
type TenantDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (tenants.Tenant, error)
}

// RouterClient revokes sessions on a hotspot router.
type RouterClient interface {
	Revoke(ctx context.Context, req RevokeRequest) CallResult
}

// Notifier delivers the expiry notice to an end user.
type Notifier interface {
	SendExpiryNotice(ctx context.Context, phone string) CallResult
}

// Deps groups the collaborators of the reconciliation job.
type Deps struct {
	Tenants  TenantDirectory
	Routers  RouterClient
	Notifier Notifier
}

// Service runs access reconciliation passes.
type Service struct {
	repo   Repository
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, deps Deps, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("access repo is required")
	}
	if deps.Tenants == nil {
		panic("tenant directory is required")
	}
	if deps.Routers == nil {
		panic("router client is required")
	}
	if deps.Notifier == nil {
		panic("notifier is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, deps: deps, cfg: cfg.withDefaults(), logger: logger}
}

// Expired lists the grants a pass at now would select, without side effects.
func (s *Service) Expired(ctx context.Context, now time.Time) ([]Grant, error) {
	grants, err := s.repo.SelectExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSelection, err)
	}
	return grants, nil
}

// Reconcile deactivates every active grant whose expiry is at or before now.
//
// Each grant is handled independently: the user is notified (best effort), every active
// device is revoked on every router the grant resolves to (best effort), then the devices
// and the grant are marked inactive in one transaction. External failures are counted but
// never block the local deactivation; local failures leave the grant selectable for the
// next pass. Only a failed selection query is returned as an error.
//
// Cancelling ctx stops new grants from starting; grants already started run to completion.
func (s *Service) Reconcile(ctx context.Context, now time.Time) (Report, error) {
	logger := platformlogging.FromContextOr(ctx, s.logger)
	if info, ok := runtrace.FromContext(ctx); ok {
		logger = logger.With(info.Fields()...)
	}

	// Selection ignores cancellation so a cancelled pass still reports what it left behind.
	grants, err := s.repo.SelectExpired(context.WithoutCancel(ctx), now)
	if err != nil {
		logger.Error("expired grant selection failed", zap.Error(err))
		return Report{Now: now}, fmt.Errorf("%w: %w", ErrSelection, err)
	}

	outcomes := make([]grantOutcome, len(grants))
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, grant := range grants {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.processGrant(work, logger, grant, now)
			return nil
		})
	}
	_ = g.Wait()

	report := summarize(now, outcomes)
	logger.Info("access reconciliation finished",
		zap.Time("now", now),
		zap.Int("total_matched", report.TotalMatched),
		zap.Int("processed", report.Processed),
		zap.Int("devices_deactivated", report.DevicesDeactivated),
		zap.Int("notifications_sent", report.NotificationsSent),
		zap.Int("notifications_failed", report.NotificationsFailed),
		zap.Int("notifications_skipped", report.NotificationsSkipped),
		zap.Int("revoke_failures", report.RevokeFailures),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cancelled", report.Cancelled),
	)
	return report, nil
}

type outcomeStatus int

const (
	statusNotStarted outcomeStatus = iota
	statusProcessed
	statusFailed
	statusSkipped
)

type grantOutcome struct {
	status         outcomeStatus
	devices        int
	notified       bool
	notifyFailed   bool
	notifySkipped  bool
	revokeFailures int
}

func summarize(now time.Time, outcomes []grantOutcome) Report {
	report := Report{Now: now, TotalMatched: len(outcomes)}
	for _, o := range outcomes {
		switch o.status {
		case statusNotStarted:
			report.Cancelled++
			continue
		case statusProcessed:
			report.Processed++
			report.DevicesDeactivated += o.devices
		case statusFailed:
			report.Failed++
		case statusSkipped:
			report.Skipped++
		}
		if o.notified {
			report.NotificationsSent++
		}
		if o.notifyFailed {
			report.NotificationsFailed++
		}
		if o.notifySkipped {
			report.NotificationsSkipped++
		}
		report.RevokeFailures += o.revokeFailures
	}
	return report
}

// targets is where a grant's revocation and notice go.
type targets struct {
	routers []tenants.Router
	notify  bool
}

func (s *Service) resolveTargets(ctx context.Context, g Grant) (targets, error) {
	if g.TenantID == nil {
		var routers []tenants.Router
		if s.cfg.LegacyRouter != nil {
			routers = []tenants.Router{*s.cfg.LegacyRouter}
		}
		return targets{routers: routers, notify: s.cfg.NotifyLegacy}, nil
	}

	t, err := s.deps.Tenants.Get(ctx, *g.TenantID)
	if err != nil {
		return targets{}, fmt.Errorf("resolve tenant %s: %w", *g.TenantID, err)
	}
	return targets{routers: t.Routers, notify: t.Supports(tenants.FeatureExpirySMS)}, nil
}

func (s *Service) processGrant(ctx context.Context, logger *zap.Logger, g Grant, now time.Time) grantOutcome {
	log := logger.With(zap.String("grant_id", g.ID.String()), zap.String("phone", g.Phone))
	out := grantOutcome{status: statusFailed}

	tgt, err := s.resolveTargets(ctx, g)
	if err != nil {
		log.Error("grant left active: routers could not be resolved", zap.Error(err))
		return out
	}

	if tgt.notify {
		res := s.call(ctx, func(callCtx context.Context) CallResult {
			return s.deps.Notifier.SendExpiryNotice(callCtx, g.Phone)
		})
		if res.Success {
			out.notified = true
		} else {
			out.notifyFailed = true
			log.Warn("expiry notice not delivered", zap.String("detail", res.Detail))
		}
	} else {
		out.notifySkipped = true
	}

	devices, err := s.repo.ActiveDevices(ctx, g.ID)
	if err != nil {
		log.Error("grant left active: devices could not be listed", zap.Error(err))
		return out
	}

	for _, d := range devices {
		for _, router := range tgt.routers {
			res := s.call(ctx, func(callCtx context.Context) CallResult {
				return s.deps.Routers.Revoke(callCtx, RevokeRequest{Identity: g.Phone, MACAddress: d.MACAddress, Router: router})
			})
			if !res.Success {
				out.revokeFailures++
				log.Warn("device revoke failed",
					zap.String("mac_address", d.MACAddress),
					zap.String("router_id", router.ID.String()),
					zap.String("detail", res.Detail),
				)
			}

			// Sent once per device per router, so a grant costs 2*devices*routers calls.
			// Routers treat a repeat as a no-op.
			res = s.call(ctx, func(callCtx context.Context) CallResult {
				return s.deps.Routers.Revoke(callCtx, RevokeRequest{Identity: g.Phone, Router: router})
			})
			if !res.Success {
				log.Debug("identity revoke failed",
					zap.String("router_id", router.ID.String()),
					zap.String("detail", res.Detail),
				)
			}
		}
	}

	n, err := s.repo.Deactivate(ctx, DeactivateInput{
		GrantID:          g.ID,
		Now:              now,
		NotificationSent: out.notified,
	})
	switch {
	case errors.Is(err, ErrGrantChanged):
		log.Info("grant changed since selection; leaving it untouched")
		out.status = statusSkipped
	case err != nil:
		log.Error("grant left active: deactivation write failed", zap.Error(err))
	default:
		out.status = statusProcessed
		out.devices = n
	}
	return out
}

// call runs fn under the configured timeout and gives up waiting once it elapses, even if
// fn ignores its context.
func (s *Service) call(ctx context.Context, fn func(context.Context) CallResult) CallResult {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	done := make(chan CallResult, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
		return Failed(fmt.Sprintf("no response within %s", s.cfg.CallTimeout))
	}
}
