package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/netpesa/hotspot-billing/domains/access/be/scheduler"
	"github.com/netpesa/hotspot-billing/domains/access/be/service"
	platformauth "github.com/netpesa/hotspot-billing/platform/go/auth"
	platformlogging "github.com/netpesa/hotspot-billing/platform/go/logging"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
)

const (
	problemTypeValidation = "https://netpesa.io/problems/validation-error"
	problemTypeNotFound   = "https://netpesa.io/problems/not-found"
	problemTypeConflict   = "https://netpesa.io/problems/conflict"
	problemTypeInternal   = "https://netpesa.io/problems/internal-error"
)

type operation string

const (
	lastRunOperation operation = "reconciliationLast"
	runOperation     operation = "reconciliationRun"
	expiredOperation operation = "grantsExpired"
)

// Runs starts passes and exposes the latest one.
type Runs interface {
	RunOnce(ctx context.Context, trigger runtrace.Trigger, requestID string) (scheduler.Run, error)
	Last() (scheduler.Run, bool)
}

// Grants previews the grants a pass would select.
type Grants interface {
	Expired(ctx context.Context, now time.Time) ([]service.Grant, error)
}

// ProblemDetails is an RFC 7807 error body.
type ProblemDetails struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ExpiredGrant is the preview representation of a grant.
type ExpiredGrant struct {
	GrantID   string     `json:"grantId"`
	TenantID  *string    `json:"tenantId,omitempty"`
	Phone     string     `json:"phone"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ExpiredGrantList wraps the preview response.
type ExpiredGrantList struct {
	Now   time.Time      `json:"now"`
	Items []ExpiredGrant `json:"items"`
}

// Handler exposes the reconciliation job over HTTP for operators.
type Handler struct {
	runs   Runs
	grants Grants
	logger *zap.Logger
	clock  func() time.Time
}

// New constructs a Handler instance.
func New(runs Runs, grants Grants, logger *zap.Logger) *Handler {
	if runs == nil {
		panic("runs is required")
	}
	if grants == nil {
		panic("grants is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{runs: runs, grants: grants, logger: logger, clock: time.Now}
}

// Routes mounts the handler endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reconciliation/last", h.LastRun)
	r.Post("/reconciliation/runs", h.TriggerRun)
	r.Get("/grants/expired", h.ExpiredGrants)
}

func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Last()
	if !ok {
		h.writeProblem(w, r, lastRunOperation, http.StatusNotFound, "Resource not found", "no reconciliation pass has run yet", problemTypeNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// TriggerRun runs a pass synchronously. The pass is detached from the request so a client
// disconnect does not stop it halfway.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if op, ok := platformauth.OperatorFromContext(r.Context()); ok {
		platformlogging.FromContextOr(r.Context(), h.logger).Info("manual reconciliation requested", zap.String("operator", op.Name))
	}

	ctx := context.WithoutCancel(r.Context())
	run, err := h.runs.RunOnce(ctx, runtrace.TriggerManual, chimw.GetReqID(r.Context()))
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		h.writeProblem(w, r, runOperation, http.StatusConflict, "Conflict", "a reconciliation pass is already running", problemTypeConflict, err)
	case err != nil:
		h.writeProblem(w, r, runOperation, http.StatusInternalServerError, "Reconciliation failed", run.Error, problemTypeInternal, err)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func (h *Handler) ExpiredGrants(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if raw := r.URL.Query().Get("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeProblem(w, r, expiredOperation, http.StatusBadRequest, "Validation failed", "now must be an RFC3339 timestamp", problemTypeValidation, err)
			return
		}
		now = parsed
	}

	grants, err := h.grants.Expired(r.Context(), now)
	if err != nil {
		h.writeProblem(w, r, expiredOperation, http.StatusInternalServerError, "Internal server error", "expired grants could not be listed", problemTypeInternal, err)
		return
	}

	items := make([]ExpiredGrant, 0, len(grants))
	for _, g := range grants {
		items = append(items, toExpiredGrant(g))
	}
	writeJSON(w, http.StatusOK, ExpiredGrantList{Now: now, Items: items})
}

func toExpiredGrant(g service.Grant) ExpiredGrant {
	out := ExpiredGrant{GrantID: g.ID.String(), Phone: g.Phone, ExpiresAt: g.ExpiresAt}
	if g.TenantID != nil {
		id := g.TenantID.String()
		out.TenantID = &id
	}
	return out
}

func (h *Handler) writeProblem(w http.ResponseWriter, r *http.Request, op operation, status int, title, detail, problemType string, err error) {
	logger := platformlogging.FromContextOr(r.Context(), h.logger)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("reconciliation operation failed", fields...)
	case status == http.StatusNotFound:
		logger.Info("reconciliation resource not found", fields...)
	default:
		logger.Warn("reconciliation request rejected", fields...)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetails{Type: problemType, Title: title, Status: status, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
