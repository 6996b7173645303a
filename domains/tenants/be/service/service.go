package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflictSlug = errors.New("tenant slug already exists")
	ErrInvalidInput = errors.New("invalid tenant input")
)

// Feature names a plan capability.
type Feature string

const (
	// FeatureExpirySMS lets the tenant's users receive an SMS when their access expires.
	FeatureExpirySMS Feature = "expiry_sms"
	FeatureVouchers  Feature = "vouchers"
)

// Status is the lifecycle state of a tenant account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// StatusFromString converts a stored value; unknown values are treated as active.
func StatusFromString(s string) Status {
	if Status(s) == StatusSuspended {
		return StatusSuspended
	}
	return StatusActive
}

// Plan is the subscription plan a tenant is billed on.
type Plan struct {
	Name     string
	Features []Feature
}

// Supports reports whether the plan grants the feature.
func (p Plan) Supports(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// Router is a hotspot router owned by a tenant.
type Router struct {
	ID      uuid.UUID
	Name    string
	Address string
}

// Tenant is a hotspot operator together with its active routers.
type Tenant struct {
	ID          uuid.UUID
	Slug        string
	DisplayName *string
	Status      Status
	Plan        Plan
	Routers     []Router
	CreatedAt   time.Time
}

// Supports reports whether the tenant's plan grants the feature.
func (t Tenant) Supports(f Feature) bool {
	return t.Plan.Supports(f)
}

// CreateInput represents the request to create a tenant.
type CreateInput struct {
	Slug        string
	DisplayName *string
	Plan        Plan
}

// AddRouterInput represents the request to register a router.
type AddRouterInput struct {
	Name    string
	Address string
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	AddRouter(ctx context.Context, tenantID uuid.UUID, r Router) (Router, error)
	Routers(ctx context.Context, tenantID uuid.UUID) ([]Router, error)
}

// Service provides tenant registry operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo, now: time.Now}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Create registers a new tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return Tenant{}, fmt.Errorf("%w: slug %q must match %s", ErrInvalidInput, input.Slug, slugPattern)
	}

	plan := input.Plan
	if strings.TrimSpace(plan.Name) == "" {
		plan.Name = "basic"
	}

	return s.repo.Create(ctx, Tenant{
		ID:          uuid.New(),
		Slug:        slug,
		DisplayName: input.DisplayName,
		Status:      StatusActive,
		Plan:        plan,
		CreatedAt:   s.now().UTC(),
	})
}

// Get returns a tenant with its active routers. Suspended tenants still resolve so that
// their users' expired access can be revoked.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	routers, err := s.repo.Routers(ctx, id)
	if err != nil {
		return Tenant{}, fmt.Errorf("load routers for tenant %s: %w", id, err)
	}
	t.Routers = routers
	return t, nil
}

// AddRouter registers a router under a tenant.
func (s *Service) AddRouter(ctx context.Context, tenantID uuid.UUID, input AddRouterInput) (Router, error) {
	name := strings.TrimSpace(input.Name)
	address := strings.TrimSpace(input.Address)
	if name == "" || address == "" {
		return Router{}, fmt.Errorf("%w: router name and address are required", ErrInvalidInput)
	}

	if _, err := s.repo.Get(ctx, tenantID); err != nil {
		return Router{}, err
	}

	return s.repo.AddRouter(ctx, tenantID, Router{ID: uuid.New(), Name: name, Address: address})
}
