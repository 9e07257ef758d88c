package models

import (
	"github.com/google/uuid"
)

// TenantType represents the legal form of a tenant
type TenantType string

const (
	TenantTypeSoleTrader TenantType = "sole_trader"
	TenantTypeCompany    TenantType = "company"
)

// TenantStatus represents tenant lifecycle status
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant represents a tenant/organization
type Tenant struct {
	BaseModel

	Name   string       `json:"name" db:"name"`
	Type   TenantType   `json:"type" db:"type"`
	Status TenantStatus `json:"status" db:"status"`

	CreatedBy uuid.UUID `json:"createdBy" db:"created_by"`

	SubscriptionPlanID *uuid.UUID `json:"subscriptionPlanId,omitempty" db:"subscription_plan_id"`

	// Theme holds per-tenant UI settings such as the dashboard layout.
	Theme Variables `json:"theme" db:"theme"`
}

// Role represents a member's role within a tenant
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// CanManageTenant reports whether the role may write other members' records.
func (r Role) CanManageTenant() bool {
	return r == RoleOwner || r == RoleAdmin
}

// MembershipStatus represents membership lifecycle status
type MembershipStatus string

const (
	MembershipInvited MembershipStatus = "invited"
	MembershipActive  MembershipStatus = "active"
	MembershipRevoked MembershipStatus = "revoked"
)

// Membership links a user to a tenant with a role.
// UserID stays nil until an email invitation is accepted.
type Membership struct {
	BaseModel

	TenantID uuid.UUID  `json:"tenantId" db:"tenant_id"`
	UserID   *uuid.UUID `json:"userId,omitempty" db:"user_id"`
	Email    string     `json:"email" db:"email"`

	Role   Role             `json:"role" db:"role"`
	Status MembershipStatus `json:"status" db:"status"`
}
