package service

import (
	"time"

	"github.com/google/uuid"

	tenants "github.com/netpesa/hotspot-billing/domains/tenants/be/service"
)

// Grant is a user's paid access window on a tenant's hotspot.
// TenantID is nil for grants created before multi-tenancy.
type Grant struct {
	ID               uuid.UUID
	TenantID         *uuid.UUID
	Phone            string
	ExpiresAt        *time.Time
	Active           bool
	NotificationSent bool
}

// ExpiredAt reports whether the grant is active and its expiry is at or before now.
// Grants without an expiry never expire.
func (g Grant) ExpiredAt(now time.Time) bool {
	return g.Active && g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Device is a client device that has used a grant.
type Device struct {
	ID         uuid.UUID
	GrantID    uuid.UUID
	MACAddress string
	IPAddress  string
	Active     bool
	LastSeenAt *time.Time
}

// CallResult is the outcome of a call to an external system. Failures carry a reason in
// Detail and are never returned as errors.
type CallResult struct {
	Success bool
	Detail  string
}

// Succeeded builds a successful CallResult.
func Succeeded(detail string) CallResult {
	return CallResult{Success: true, Detail: detail}
}

// Failed builds a failed CallResult.
func Failed(reason string) CallResult {
	return CallResult{Success: false, Detail: reason}
}

// RevokeRequest asks a router to drop a user's session. An empty MACAddress requests an
// identity-only disconnect that catches sessions not keyed by device.
type RevokeRequest struct {
	Identity   string
	MACAddress string
	Router     tenants.Router
}

// DeactivateInput describes the writes for one expired grant. Repositories deactivate every
// active device of the grant and the grant itself atomically, re-checking the expiry
// predicate against Now.
type DeactivateInput struct {
	GrantID          uuid.UUID
	Now              time.Time
	NotificationSent bool
}

// Report summarises one reconciliation pass.
type Report struct {
	Now                  time.Time `json:"now"`
	TotalMatched         int       `json:"totalMatched"`
	Processed            int       `json:"processed"`
	DevicesDeactivated   int       `json:"devicesDeactivated"`
	NotificationsSent    int       `json:"notificationsSent"`
	NotificationsFailed  int       `json:"notificationsFailed"`
	NotificationsSkipped int       `json:"notificationsSkipped"`
	RevokeFailures       int       `json:"revokeFailures"`
	Failed               int       `json:"failed"`
	Skipped              int       `json:"skipped"`
	Cancelled            int       `json:"cancelled"`
}

// Config carries the job's tunables.
type Config struct {
	// CallTimeout bounds every notification and router call. Defaults to 10s.
	CallTimeout time.Duration
	// Workers caps how many grants are processed concurrently. Defaults to 1.
	Workers int
	// LegacyRouter serves grants that have no tenant. Nil means such grants only get
	// their local state deactivated.
	LegacyRouter *tenants.Router
	// NotifyLegacy controls expiry notices for grants that have no tenant.
	NotifyLegacy bool
}

const defaultCallTimeout = 10 * time.Second

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}
