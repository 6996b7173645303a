package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netpesa/hotspot-billing/domains/access/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	grants  map[uuid.UUID]service.Grant
	devices map[uuid.UUID][]service.Device
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		grants:  make(map[uuid.UUID]service.Grant),
		devices: make(map[uuid.UUID][]service.Device),
	}
}

// PutGrant inserts or replaces a grant.
func (r *MemoryRepository) PutGrant(g service.Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.ID] = g
}

// PutDevice inserts or replaces a device under its grant.
func (r *MemoryRepository) PutDevice(d service.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.devices[d.GrantID]
	for i := range list {
		if list[i].ID == d.ID {
			list[i] = d
			return
		}
	}
	r.devices[d.GrantID] = append(list, d)
}

// Grant returns a grant by id.
func (r *MemoryRepository) Grant(id uuid.UUID) (service.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grants[id]
	if !ok {
		return service.Grant{}, service.ErrNotFound
	}
	return g, nil
}

// Devices returns every device of a grant, active or not.
func (r *MemoryRepository) Devices(grantID uuid.UUID) []service.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Device, len(r.devices[grantID]))
	copy(out, r.devices[grantID])
	return out
}

func (r *MemoryRepository) SelectExpired(ctx context.Context, now time.Time) ([]service.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Grant, 0)
	for _, g := range r.grants {
		if g.ExpiredAt(now) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (r *MemoryRepository) ActiveDevices(ctx context.Context, grantID uuid.UUID) ([]service.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Device, 0)
	for _, d := range r.devices[grantID] {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, input service.DeactivateInput) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.grants[input.GrantID]
	if !ok || !g.ExpiredAt(input.Now) {
		return 0, service.ErrGrantChanged
	}

	n := 0
	list := r.devices[input.GrantID]
	for i := range list {
		if list[i].Active {
			list[i].Active = false
			n++
		}
	}

	g.Active = false
	g.NotificationSent = g.NotificationSent || input.NotificationSent
	r.grants[g.ID] = g
	return n, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
