package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/netpesa/hotspot-billing/domains/access/be/service"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// PostgresRepository implements the access repository on top of GrantStore.
type PostgresRepository struct {
	store *persistence.GrantStore
}

// NewPostgresRepository constructs a repository backed by GrantStore.
func NewPostgresRepository(store *persistence.GrantStore) *PostgresRepository {
	if store == nil {
		panic("grant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]service.Grant, error) {
	recs, err := r.store.SelectExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]service.Grant, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceGrant(rec))
	}
	return out, nil
}

func (r *PostgresRepository) ActiveDevices(ctx context.Context, grantID uuid.UUID) ([]service.Device, error) {
	recs, err := r.store.ListDevices(ctx, grantID, true)
	if err != nil {
		return nil, err
	}
	out := make([]service.Device, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceDevice(rec))
	}
	return out, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, input service.DeactivateInput) (int, error) {
	n, err := r.store.DeactivateGrant(ctx, persistence.DeactivateGrantParams{
		GrantID:          input.GrantID,
		Now:              input.Now,
		NotificationSent: input.NotificationSent,
	})
	if errors.Is(err, persistence.ErrStaleGrant) {
		return 0, service.ErrGrantChanged
	}
	return n, err
}

func toServiceGrant(rec persistence.GrantRecord) service.Grant {
	return service.Grant{
		ID:               rec.GrantID,
		TenantID:         rec.TenantID,
		Phone:            rec.Phone,
		ExpiresAt:        rec.ExpiresAt,
		Active:           rec.IsActive,
		NotificationSent: rec.NotificationSent,
	}
}

func toServiceDevice(rec persistence.DeviceRecord) service.Device {
	d := service.Device{
		ID:         rec.DeviceID,
		GrantID:    rec.GrantID,
		MACAddress: rec.MACAddress,
		Active:     rec.IsActive,
		LastSeenAt: rec.LastSeenAt,
	}
	if rec.IPAddress != nil {
		d.IPAddress = *rec.IPAddress
	}
	return d
}

var _ service.Repository = (*PostgresRepository)(nil)
