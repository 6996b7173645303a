package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantRecord represents a row in the tenants table.
type TenantRecord struct {
	TenantID     uuid.UUID
	Slug         string
	DisplayName  *string
	Status       string
	PlanName     string
	PlanFeatures []string
	CreatedAt    time.Time
}

// RouterRecord represents a row in the routers table.
type RouterRecord struct {
	RouterID  uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Address   string
	IsActive  bool
	CreatedAt time.Time
}

// TenantStore exposes persistence helpers for the tenants and routers tables.
type TenantStore struct {
	db *DB
}

// NewTenantStore returns a store bound to the given DB.
func NewTenantStore(db *DB) (*TenantStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &TenantStore{db: db}, nil
}

// CreateTenant inserts a tenant and returns the persisted record.
func (s *TenantStore) CreateTenant(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if rec.PlanFeatures == nil {
		rec.PlanFeatures = []string{}
	}

	var out TenantRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO tenants (tenant_id, slug, display_name, status, plan_name, plan_features)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING tenant_id, slug, display_name, status, plan_name, plan_features, created_at
        `, rec.TenantID, strings.TrimSpace(rec.Slug), rec.DisplayName, rec.Status, rec.PlanName, rec.PlanFeatures)

		var err error
		out, err = scanTenant(row)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// GetTenant returns a tenant by id.
func (s *TenantStore) GetTenant(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	var out TenantRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            SELECT tenant_id, slug, display_name, status, plan_name, plan_features, created_at
            FROM tenants
            WHERE tenant_id = $1
        `, id)

		var err error
		out, err = scanTenant(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, fmt.Errorf("get tenant: %w", err)
	}
	return out, nil
}

// CreateRouter inserts a router owned by a tenant.
func (s *TenantStore) CreateRouter(ctx context.Context, rec RouterRecord) (RouterRecord, error) {
	if rec.RouterID == uuid.Nil {
		return RouterRecord{}, errors.New("router id is required")
	}

	var out RouterRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO routers (router_id, tenant_id, name, address, is_active)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING router_id, tenant_id, name, address, is_active, created_at
        `, rec.RouterID, rec.TenantID, strings.TrimSpace(rec.Name), strings.TrimSpace(rec.Address), rec.IsActive)

		var err error
		out, err = scanRouter(row)
		return err
	})
	if err != nil {
		return RouterRecord{}, fmt.Errorf("create router: %w", err)
	}
	return out, nil
}

// ActiveRouters lists the tenant's routers that are currently enabled.
func (s *TenantStore) ActiveRouters(ctx context.Context, tenantID uuid.UUID) ([]RouterRecord, error) {
	out := make([]RouterRecord, 0)
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT router_id, tenant_id, name, address, is_active, created_at
            FROM routers
            WHERE tenant_id = $1 AND is_active
            ORDER BY created_at, router_id
        `, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRouter(rows)
			if err != nil {
				return fmt.Errorf("scan router: %w", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}
	return out, nil
}

func scanTenant(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(
		&rec.TenantID,
		&rec.Slug,
		&rec.DisplayName,
		&rec.Status,
		&rec.PlanName,
		&rec.PlanFeatures,
		&rec.CreatedAt,
	); err != nil {
		return TenantRecord{}, err
	}
	return rec, nil
}

func scanRouter(row pgx.Row) (RouterRecord, error) {
	var rec RouterRecord
	if err := row.Scan(
		&rec.RouterID,
		&rec.TenantID,
		&rec.Name,
		&rec.Address,
		&rec.IsActive,
		&rec.CreatedAt,
	); err != nil {
		return RouterRecord{}, err
	}
	return rec, nil
}
