package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/netpesa/hotspot-billing/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]service.Tenant
	bySlug  map[string]uuid.UUID
	routers map[uuid.UUID][]service.Router
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]service.Tenant),
		bySlug:  make(map[string]uuid.UUID),
		routers: make(map[uuid.UUID][]service.Router),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[t.Slug]; exists {
		return service.Tenant{}, service.ErrConflictSlug
	}

	t.Routers = nil
	r.byID[t.ID] = t
	r.bySlug[t.Slug] = t.ID
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) AddRouter(ctx context.Context, tenantID uuid.UUID, router service.Router) (service.Router, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[tenantID]; !ok {
		return service.Router{}, service.ErrNotFound
	}
	r.routers[tenantID] = append(r.routers[tenantID], router)
	return router, nil
}

func (r *MemoryRepository) Routers(ctx context.Context, tenantID uuid.UUID) ([]service.Router, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Router, len(r.routers[tenantID]))
	copy(out, r.routers[tenantID])
	return out, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
