package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// PostgresRepository implements the tenant repository on top of TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	out, err := r.store.CreateTenant(ctx, toRecord(t))
	if err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return service.Tenant{}, service.ErrConflictSlug
		}
		return service.Tenant{}, err
	}
	return toServiceTenant(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.GetTenant(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) AddRouter(ctx context.Context, tenantID uuid.UUID, router service.Router) (service.Router, error) {
	rec, err := r.store.CreateRouter(ctx, persistence.RouterRecord{
		RouterID: router.ID,
		TenantID: tenantID,
		Name:     router.Name,
		Address:  router.Address,
		IsActive: true,
	})
	if err != nil {
		return service.Router{}, err
	}
	return toServiceRouter(rec), nil
}

func (r *PostgresRepository) Routers(ctx context.Context, tenantID uuid.UUID) ([]service.Router, error) {
	recs, err := r.store.ActiveRouters(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.Router, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceRouter(rec))
	}
	return out, nil
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	features := make([]string, 0, len(t.Plan.Features))
	for _, f := range t.Plan.Features {
		features = append(features, string(f))
	}
	return persistence.TenantRecord{
		TenantID:     t.ID,
		Slug:         t.Slug,
		DisplayName:  t.DisplayName,
		Status:       string(t.Status),
		PlanName:     t.Plan.Name,
		PlanFeatures: features,
		CreatedAt:    t.CreatedAt,
	}
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	features := make([]service.Feature, 0, len(rec.PlanFeatures))
	for _, f := range rec.PlanFeatures {
		features = append(features, service.Feature(f))
	}
	return service.Tenant{
		ID:          rec.TenantID,
		Slug:        rec.Slug,
		DisplayName: rec.DisplayName,
		Status:      service.StatusFromString(rec.Status),
		Plan:        service.Plan{Name: rec.PlanName, Features: features},
		CreatedAt:   rec.CreatedAt,
	}
}

func toServiceRouter(rec persistence.RouterRecord) service.Router {
	return service.Router{ID: rec.RouterID, Name: rec.Name, Address: rec.Address}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

var _ service.Repository = (*PostgresRepository)(nil)
