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

// ErrStaleGrant is returned by DeactivateGrant when the grant no longer matches the expiry
// predicate (renewed or already deactivated since it was selected). No writes are kept.
var ErrStaleGrant = errors.New("grant no longer expired and active")

// GrantRecord represents a row in the access_grants table.
type GrantRecord struct {
	GrantID          uuid.UUID
	TenantID         *uuid.UUID
	Phone            string
	ExpiresAt        *time.Time
	IsActive         bool
	NotificationSent bool
	UpdatedAt        time.Time
}

// DeviceRecord represents a row in the devices table.
type DeviceRecord struct {
	DeviceID   uuid.UUID
	GrantID    uuid.UUID
	MACAddress string
	IPAddress  *string
	IsActive   bool
	LastSeenAt *time.Time
}

// DeactivateGrantParams describes the writes applied for one expired grant.
type DeactivateGrantParams struct {
	GrantID          uuid.UUID
	Now              time.Time
	NotificationSent bool
}

// GrantStore exposes persistence helpers for the access_grants and devices tables.
type GrantStore struct {
	db *DB
}

// NewGrantStore returns a store bound to the given DB.
func NewGrantStore(db *DB) (*GrantStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &GrantStore{db: db}, nil
}

const grantColumns = `grant_id, tenant_id, phone, expires_at, is_active, notification_sent, updated_at`

const deviceColumns = `device_id, grant_id, mac_address, ip_address, is_active, last_seen_at`

// CreateGrant inserts an access grant.
func (s *GrantStore) CreateGrant(ctx context.Context, rec GrantRecord) (GrantRecord, error) {
	if rec.GrantID == uuid.Nil {
		return GrantRecord{}, errors.New("grant id is required")
	}

	var out GrantRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO access_grants (grant_id, tenant_id, phone, expires_at, is_active, notification_sent)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING `+grantColumns,
			rec.GrantID, rec.TenantID, strings.TrimSpace(rec.Phone), rec.ExpiresAt, rec.IsActive, rec.NotificationSent)

		var err error
		out, err = scanGrant(row)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return GrantRecord{}, ErrConflict
		}
		return GrantRecord{}, fmt.Errorf("create grant: %w", err)
	}
	return out, nil
}

// CreateDevice inserts a device attached to a grant.
func (s *GrantStore) CreateDevice(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	if rec.DeviceID == uuid.Nil {
		return DeviceRecord{}, errors.New("device id is required")
	}

	var out DeviceRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO devices (device_id, grant_id, mac_address, ip_address, is_active, last_seen_at)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING `+deviceColumns,
			rec.DeviceID, rec.GrantID, strings.ToUpper(strings.TrimSpace(rec.MACAddress)), rec.IPAddress, rec.IsActive, rec.LastSeenAt)

		var err error
		out, err = scanDevice(row)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return DeviceRecord{}, ErrConflict
		}
		return DeviceRecord{}, fmt.Errorf("create device: %w", err)
	}
	return out, nil
}

// GetGrant returns a grant by id.
func (s *GrantStore) GetGrant(ctx context.Context, id uuid.UUID) (GrantRecord, error) {
	var out GrantRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE grant_id = $1`, id)

		var err error
		out, err = scanGrant(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GrantRecord{}, ErrNotFound
		}
		return GrantRecord{}, fmt.Errorf("get grant: %w", err)
	}
	return out, nil
}

// SelectExpired returns every active grant whose expiry is at or before now.
// Grants without an expiry never match.
func (s *GrantStore) SelectExpired(ctx context.Context, now time.Time) ([]GrantRecord, error) {
	out := make([]GrantRecord, 0)
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT `+grantColumns+`
            FROM access_grants
            WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
            ORDER BY expires_at, grant_id
        `, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanGrant(rows)
			if err != nil {
				return fmt.Errorf("scan grant: %w", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select expired grants: %w", err)
	}
	return out, nil
}

// ListDevices returns the devices of a grant; activeOnly restricts the result to active ones.
func (s *GrantStore) ListDevices(ctx context.Context, grantID uuid.UUID, activeOnly bool) ([]DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE grant_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY mac_address`

	out := make([]DeviceRecord, 0)
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, grantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanDevice(rows)
			if err != nil {
				return fmt.Errorf("scan device: %w", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

// DeactivateGrant marks every active device of the grant, and the grant itself, inactive in
// one transaction. Devices attached after the caller listed them are included. The grant
// update re-checks the expiry predicate against params.Now; when it no longer holds the
// transaction rolls back and ErrStaleGrant is returned.
func (s *GrantStore) DeactivateGrant(ctx context.Context, params DeactivateGrantParams) (int, error) {
	var devices int
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE devices
            SET is_active = FALSE
            WHERE grant_id = $1 AND is_active
        `, params.GrantID)
		if err != nil {
			return fmt.Errorf("deactivate devices: %w", err)
		}
		devices = int(tag.RowsAffected())

		tag, err = tx.Exec(ctx, `
            UPDATE access_grants
            SET is_active = FALSE,
                notification_sent = notification_sent OR $3,
                updated_at = now()
            WHERE grant_id = $1 AND is_active AND expires_at IS NOT NULL AND expires_at <= $2
        `, params.GrantID, params.Now, params.NotificationSent)
		if err != nil {
			return fmt.Errorf("deactivate grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleGrant
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return devices, nil
}

func scanGrant(row pgx.Row) (GrantRecord, error) {
	var rec GrantRecord
	if err := row.Scan(
		&rec.GrantID,
		&rec.TenantID,
		&rec.Phone,
		&rec.ExpiresAt,
		&rec.IsActive,
		&rec.NotificationSent,
		&rec.UpdatedAt,
	); err != nil {
		return GrantRecord{}, err
	}
	return rec, nil
}

func scanDevice(row pgx.Row) (DeviceRecord, error) {
	var rec DeviceRecord
	if err := row.Scan(
		&rec.DeviceID,
		&rec.GrantID,
		&rec.MACAddress,
		&rec.IPAddress,
		&rec.IsActive,
		&rec.LastSeenAt,
	); err != nil {
		return DeviceRecord{}, err
	}
	return rec, nil
}
