package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/netpesa/hotspot-billing/platform/go/persistence"
	"github.com/netpesa/hotspot-billing/platform/go/persistence/pgtest"
)

func TestGrantStoreDeactivateLifecycle(t *testing.T) {
	t.Parallel()

	_, db := pgtest.Start(t)
	ctx := context.Background()

	tenants, err := persistence.NewTenantStore(db)
	require.NoError(t, err)
	grants, err := persistence.NewGrantStore(db)
	require.NoError(t, err)

	tenant, err := tenants.CreateTenant(ctx, persistence.TenantRecord{
		TenantID:     uuid.New(),
		Slug:         "kahawa-wifi",
		Status:       "active",
		PlanName:     "pro",
		PlanFeatures: []string{"expiry_sms"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"expiry_sms"}, tenant.PlanFeatures)

	_, err = tenants.CreateTenant(ctx, persistence.TenantRecord{TenantID: uuid.New(), Slug: "kahawa-wifi", Status: "active", PlanName: "basic"})
	require.ErrorIs(t, err, persistence.ErrConflict)

	_, err = tenants.CreateRouter(ctx, persistence.RouterRecord{
		RouterID: uuid.New(), TenantID: tenant.TenantID, Name: "main", Address: "10.0.0.1", IsActive: true,
	})
	require.NoError(t, err)
	_, err = tenants.CreateRouter(ctx, persistence.RouterRecord{
		RouterID: uuid.New(), TenantID: tenant.TenantID, Name: "retired", Address: "10.0.0.2", IsActive: false,
	})
	require.NoError(t, err)

	routers, err := tenants.ActiveRouters(ctx, tenant.TenantID)
	require.NoError(t, err)
	require.Len(t, routers, 1)
	require.Equal(t, "main", routers[0].Name)

	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	expired, err := grants.CreateGrant(ctx, persistence.GrantRecord{
		GrantID: uuid.New(), TenantID: &tenant.TenantID, Phone: "254700000001", ExpiresAt: &past, IsActive: true,
	})
	require.NoError(t, err)
	live, err := grants.CreateGrant(ctx, persistence.GrantRecord{
		GrantID: uuid.New(), TenantID: &tenant.TenantID, Phone: "254700000002", ExpiresAt: &future, IsActive: true,
	})
	require.NoError(t, err)
	_, err = grants.CreateGrant(ctx, persistence.GrantRecord{
		GrantID: uuid.New(), Phone: "254700000003", IsActive: true,
	})
	require.NoError(t, err)

	device, err := grants.CreateDevice(ctx, persistence.DeviceRecord{
		DeviceID: uuid.New(), GrantID: expired.GrantID, MACAddress: "aa:bb:cc:dd:ee:ff", IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", device.MACAddress)

	selected, err := grants.SelectExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	require.Equal(t, expired.GrantID, selected[0].GrantID)

	_, err = grants.DeactivateGrant(ctx, persistence.DeactivateGrantParams{GrantID: live.GrantID, Now: now})
	require.ErrorIs(t, err, persistence.ErrStaleGrant)

	// Attached after selection; still deactivated with the grant.
	_, err = grants.CreateDevice(ctx, persistence.DeviceRecord{
		DeviceID: uuid.New(), GrantID: expired.GrantID, MACAddress: "aa:bb:cc:dd:ee:01", IsActive: true,
	})
	require.NoError(t, err)

	n, err := grants.DeactivateGrant(ctx, persistence.DeactivateGrantParams{
		GrantID:          expired.GrantID,
		Now:              now,
		NotificationSent: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := grants.GetGrant(ctx, expired.GrantID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.True(t, got.NotificationSent)

	active, err := grants.ListDevices(ctx, expired.GrantID, true)
	require.NoError(t, err)
	require.Empty(t, active)

	selected, err = grants.SelectExpired(ctx, now)
	require.NoError(t, err)
	require.Empty(t, selected)

	_, err = grants.GetGrant(ctx, uuid.New())
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestGrantStoreStaleDeactivationKeepsDevicesActive(t *testing.T) {
	t.Parallel()

	_, db := pgtest.Start(t)
	ctx := context.Background()

	grants, err := persistence.NewGrantStore(db)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	grant, err := grants.CreateGrant(ctx, persistence.GrantRecord{
		GrantID: uuid.New(), Phone: "254711000000", ExpiresAt: &future, IsActive: true,
	})
	require.NoError(t, err)
	_, err = grants.CreateDevice(ctx, persistence.DeviceRecord{
		DeviceID: uuid.New(), GrantID: grant.GrantID, MACAddress: "11:22:33:44:55:66", IsActive: true,
	})
	require.NoError(t, err)

	_, err = grants.DeactivateGrant(ctx, persistence.DeactivateGrantParams{
		GrantID: grant.GrantID, Now: time.Now(),
	})
	require.ErrorIs(t, err, persistence.ErrStaleGrant)

	active, err := grants.ListDevices(ctx, grant.GrantID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
}
