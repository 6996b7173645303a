package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
	"github.com/netpesa/hotspot-billing/platform/go/persistence/pgtest"
)

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	_, db := pgtest.Start(t)
	store, err := persistence.NewTenantStore(db)
	require.NoError(t, err)

	svc := service.New(NewPostgresRepository(store))
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{
		Slug: "kahawa-wifi",
		Plan: service.Plan{Name: "pro", Features: []service.Feature{service.FeatureExpirySMS}},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, service.CreateInput{Slug: "kahawa-wifi"})
	require.ErrorIs(t, err, service.ErrConflictSlug)

	_, err = svc.AddRouter(ctx, created.ID, service.AddRouterInput{Name: "gate", Address: "10.8.0.2"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.Supports(service.FeatureExpirySMS))
	require.Len(t, got.Routers, 1)
	require.Equal(t, "10.8.0.2", got.Routers[0].Address)

	_, err = svc.Get(ctx, uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestMemoryRepositoryConflictAndRouters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tenant := service.Tenant{ID: uuid.New(), Slug: "mtaani"}
	_, err := repo.Create(ctx, tenant)
	require.NoError(t, err)
	_, err = repo.Create(ctx, service.Tenant{ID: uuid.New(), Slug: "mtaani"})
	require.ErrorIs(t, err, service.ErrConflictSlug)

	_, err = repo.AddRouter(ctx, uuid.New(), service.Router{ID: uuid.New()})
	require.ErrorIs(t, err, service.ErrNotFound)

	router := service.Router{ID: uuid.New(), Name: "gate", Address: "10.0.0.1"}
	_, err = repo.AddRouter(ctx, tenant.ID, router)
	require.NoError(t, err)

	routers, err := repo.Routers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, []service.Router{router}, routers)
}
