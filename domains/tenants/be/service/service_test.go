package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// inMemoryRepo is a minimal in-memory impl of Repository for tests.
type inMemoryRepo struct {
	mu         sync.Mutex
	data       map[uuid.UUID]Tenant
	routers    map[uuid.UUID][]Router
	routersErr error
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{data: make(map[uuid.UUID]Tenant), routers: make(map[uuid.UUID][]Router)}
}

func (r *inMemoryRepo) Create(ctx context.Context, t Tenant) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.Slug == t.Slug {
			return Tenant{}, ErrConflictSlug
		}
	}
	r.data[t.ID] = t
	return t, nil
}

func (r *inMemoryRepo) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *inMemoryRepo) AddRouter(ctx context.Context, tenantID uuid.UUID, router Router) (Router, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[tenantID] = append(r.routers[tenantID], router)
	return router, nil
}

func (r *inMemoryRepo) Routers(ctx context.Context, tenantID uuid.UUID) ([]Router, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routersErr != nil {
		return nil, r.routersErr
	}
	return r.routers[tenantID], nil
}

func TestPlanSupports(t *testing.T) {
	plan := Plan{Name: "pro", Features: []Feature{FeatureVouchers, FeatureExpirySMS}}
	require.True(t, plan.Supports(FeatureExpirySMS))
	require.False(t, Plan{Name: "basic"}.Supports(FeatureExpirySMS))
	require.True(t, Tenant{Plan: plan}.Supports(FeatureVouchers))
}

func TestCreateNormalizesSlugAndDefaultsPlan(t *testing.T) {
	svc := New(newInMemoryRepo())

	created, err := svc.Create(context.Background(), CreateInput{Slug: "  Kahawa-WiFi "})
	require.NoError(t, err)
	require.Equal(t, "kahawa-wifi", created.Slug)
	require.Equal(t, "basic", created.Plan.Name)
	require.Equal(t, StatusActive, created.Status)
	require.NotEqual(t, uuid.Nil, created.ID)

	_, err = svc.Create(context.Background(), CreateInput{Slug: "kahawa-wifi"})
	require.ErrorIs(t, err, ErrConflictSlug)
}

func TestCreateRejectsInvalidSlug(t *testing.T) {
	svc := New(newInMemoryRepo())

	_, err := svc.Create(context.Background(), CreateInput{Slug: "bad slug!"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetAttachesRouters(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Slug: "mtaani-net"})
	require.NoError(t, err)

	_, err = svc.AddRouter(ctx, created.ID, AddRouterInput{Name: "gate", Address: "10.8.0.2"})
	require.NoError(t, err)
	_, err = svc.AddRouter(ctx, created.ID, AddRouterInput{Name: "cafe", Address: "10.8.0.3"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Routers, 2)
	require.Equal(t, "gate", got.Routers[0].Name)
}

func TestGetPropagatesRouterLookupFailure(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Slug: "mtaani-net"})
	require.NoError(t, err)

	repo.routersErr = errors.New("connection reset")
	_, err = svc.Get(ctx, created.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestAddRouterValidation(t *testing.T) {
	svc := New(newInMemoryRepo())
	ctx := context.Background()

	_, err := svc.AddRouter(ctx, uuid.New(), AddRouterInput{Name: "gate"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddRouter(ctx, uuid.New(), AddRouterInput{Name: "gate", Address: "10.0.0.1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusFromString(t *testing.T) {
	require.Equal(t, StatusSuspended, StatusFromString("suspended"))
	require.Equal(t, StatusActive, StatusFromString("active"))
	require.Equal(t, StatusActive, StatusFromString("garbage"))
}
