package handler

import (
	"context"
	"encoding/json"
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
	platformauth "github.com/netpesa/hotspot-billing/platform/go/auth"
	platformmiddleware "github.com/netpesa/hotspot-billing/platform/go/middleware"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
)

// newValidatedRouter mounts h the way the reconciler does: token check, then contract validation.
func newValidatedRouter(t *testing.T, h *Handler, tokens map[string]string) http.Handler {
	t.Helper()
	contract, err := LoadContract()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		if len(tokens) > 0 {
			api.Use(platformauth.RequireToken(tokens))
		}
		api.Use(platformmiddleware.NewSpecValidator(contract, platformmiddleware.OperatorAuthentication(len(tokens) > 0)))
		h.Routes(api)
	})
	return r
}

func TestLoadContractDescribesEveryRoute(t *testing.T) {
	contract, err := LoadContract()
	require.NoError(t, err)

	require.NotNil(t, contract.Paths.Value("/api/v1/reconciliation/last").Get)
	require.NotNil(t, contract.Paths.Value("/api/v1/reconciliation/runs").Post)
	require.NotNil(t, contract.Paths.Value("/api/v1/grants/expired").Get)
	require.Contains(t, contract.Components.SecuritySchemes, "bearerAuth")
}

func TestContractRejectsBadNowBeforeHandler(t *testing.T) {
	// The handler's own check titles its problem "Validation failed".
	h := New(&mockRuns{}, &mockGrants{}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grants/expired?now=yesterday", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	newValidatedRouter(t, h, map[string]string{"s3cret": "ops"}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, problemTypeValidation, problem.Type)
	require.Equal(t, "Bad Request", problem.Title)
	require.Contains(t, problem.Detail, "now")
}

func TestContractAcceptsRFC3339Now(t *testing.T) {
	var gotNow time.Time
	grants := &mockGrants{expiredFn: func(_ context.Context, now time.Time) ([]service.Grant, error) {
		gotNow = now
		return nil, nil
	}}
	h := New(&mockRuns{}, grants, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grants/expired?now=2026-03-01T12:00:00%2B03:00", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	newValidatedRouter(t, h, map[string]string{"s3cret": "ops"}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), gotNow.UTC())
}

func TestContractRejectsMissingToken(t *testing.T) {
	h := New(&mockRuns{}, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newValidatedRouter(t, h, map[string]string{"s3cret": "ops"}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContractPassesOperatorToHandler(t *testing.T) {
	var operator string
	runs := &mockRuns{runOnceFn: func(ctx context.Context, trigger runtrace.Trigger, _ string) (scheduler.Run, error) {
		if op, ok := platformauth.OperatorFromContext(ctx); ok {
			operator = op.Name
		}
		return scheduler.Run{RunID: uuid.New(), Trigger: trigger}, nil
	}}
	h := New(runs, &mockGrants{}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	newValidatedRouter(t, h, map[string]string{"s3cret": "ops"}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ops", operator)
}

func TestContractWithoutTokensIsOpen(t *testing.T) {
	h := New(&mockRuns{}, &mockGrants{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	newValidatedRouter(t, h, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/last", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, problemTypeNotFound, problem.Type)
}
