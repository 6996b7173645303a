package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netpesa/hotspot-billing/domains/access/be/scheduler"
	"github.com/netpesa/hotspot-billing/domains/access/be/service"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
)

type mockRuns struct {
	runOnceFn func(ctx context.Context, trigger runtrace.Trigger, requestID string) (scheduler.Run, error)
	last      *scheduler.Run
}

func (m *mockRuns) RunOnce(ctx context.Context, trigger runtrace.Trigger, requestID string) (scheduler.Run, error) {
	if m.runOnceFn == nil {
		panic("runOnceFn not configured")
	}
	return m.runOnceFn(ctx, trigger, requestID)
}

func (m *mockRuns) Last() (scheduler.Run, bool) {
	if m.last == nil {
		return scheduler.Run{}, false
	}
	return *m.last, true
}

type mockGrants struct {
	expiredFn func(ctx context.Context, now time.Time) ([]service.Grant, error)
}

func (m *mockGrants) Expired(ctx context.Context, now time.Time) ([]service.Grant, error) {
	if m.expiredFn == nil {
		panic("expiredFn not configured")
	}
	return m.expiredFn(ctx, now)
}

func newRouter(t *testing.T, h *Handler) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r
}

func TestLastRunNotFound(t *testing.T) {
	h := New(&mockRuns{}, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/last", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestLastRunReturnsRun(t *testing.T) {
	run := scheduler.Run{
		RunID:   uuid.New(),
		Trigger: runtrace.TriggerSchedule,
		Report:  service.Report{TotalMatched: 3, Processed: 2, Failed: 1},
	}
	h := New(&mockRuns{last: &run}, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/last", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got scheduler.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, run.RunID, got.RunID)
	require.Equal(t, 3, got.Report.TotalMatched)
	require.Equal(t, 1, got.Report.Failed)
}

func TestTriggerRunUsesManualTrigger(t *testing.T) {
	var gotTrigger runtrace.Trigger
	runs := &mockRuns{runOnceFn: func(ctx context.Context, trigger runtrace.Trigger, _ string) (scheduler.Run, error) {
		gotTrigger = trigger
		return scheduler.Run{RunID: uuid.New(), Trigger: trigger, Report: service.Report{Processed: 1}}, nil
	}}
	h := New(runs, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, runtrace.TriggerManual, gotTrigger)
}

func TestTriggerRunConflict(t *testing.T) {
	runs := &mockRuns{runOnceFn: func(context.Context, runtrace.Trigger, string) (scheduler.Run, error) {
		return scheduler.Run{}, scheduler.ErrRunInProgress
	}}
	h := New(runs, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunSelectionFailure(t *testing.T) {
	runs := &mockRuns{runOnceFn: func(context.Context, runtrace.Trigger, string) (scheduler.Run, error) {
		err := errors.Join(service.ErrSelection, errors.New("connection refused"))
		return scheduler.Run{Error: err.Error()}, err
	}}
	h := New(runs, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "connection refused")
}

func TestExpiredGrantsParsesNow(t *testing.T) {
	tenantID := uuid.New()
	expiry := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	var gotNow time.Time
	grants := &mockGrants{expiredFn: func(_ context.Context, now time.Time) ([]service.Grant, error) {
		gotNow = now
		return []service.Grant{
			{ID: uuid.New(), TenantID: &tenantID, Phone: "+254700000001", ExpiresAt: &expiry, Active: true},
			{ID: uuid.New(), Phone: "+254700000002", ExpiresAt: &expiry, Active: true},
		}, nil
	}}
	h := New(&mockRuns{}, grants, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/grants/expired?now=2026-03-01T12:00:00Z", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), gotNow.UTC())

	var body ExpiredGrantList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.NotNil(t, body.Items[0].TenantID)
	require.Equal(t, tenantID.String(), *body.Items[0].TenantID)
	require.Nil(t, body.Items[1].TenantID)
}

func TestExpiredGrantsRejectsBadNow(t *testing.T) {
	h := New(&mockRuns{}, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/grants/expired?now=yesterday", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpiredGrantsDefaultsToClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotNow time.Time
	grants := &mockGrants{expiredFn: func(_ context.Context, now time.Time) ([]service.Grant, error) {
		gotNow = now
		return nil, nil
	}}
	h := New(&mockRuns{}, grants, zaptest.NewLogger(t))
	h.clock = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/grants/expired", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, fixed, gotNow)
	require.JSONEq(t, `{"now":"2026-03-01T12:00:00Z","items":[]}`, rec.Body.String())
}
