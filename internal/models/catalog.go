package models

import (
	"github.com/google/uuid"
)

// LoanType represents a tenant-scoped loan product catalog entry.
// Name is unique per tenant, case-insensitively; code is derived from
// the name's initials by the client and only checked for length here.
type LoanType struct {
	TenantModel

	Code     string `json:"code" db:"code"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"isActive" db:"is_active"`
}

// DocumentChecklistItem represents a tenant-scoped document catalog entry
type DocumentChecklistItem struct {
	TenantModel

	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"isActive" db:"is_active"`
}

// PipelineStage represents a tenant-scoped pipeline stage.
// SortOrder defines the display/progression sequence; ties are allowed
// and broken by created_at on every list path.
type PipelineStage struct {
	TenantModel

	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	SortOrder   int    `json:"order" db:"sort_order"`
}

// MappingStatus represents a checklist mapping status
type MappingStatus string

const (
	MappingRequired MappingStatus = "REQUIRED"
	MappingOptional MappingStatus = "OPTIONAL"
	MappingInactive MappingStatus = "INACTIVE"
)

// Valid reports whether the status is one of the known values.
func (s MappingStatus) Valid() bool {
	switch s {
	case MappingRequired, MappingOptional, MappingInactive:
		return true
	}
	return false
}

// LoanTypeDocument maps a loan type to a checklist item,
// unique per (tenant, loanType, document).
type LoanTypeDocument struct {
	TenantModel

	LoanTypeID uuid.UUID     `json:"loanTypeId" db:"loan_type_id"`
	DocumentID uuid.UUID     `json:"documentId" db:"document_id"`
	Status     MappingStatus `json:"status" db:"status"`
}
