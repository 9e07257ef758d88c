package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// MaxListResults caps every tenant-scoped list query.
const MaxListResults = 200

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	ListTenantsForUser(ctx context.Context, userID uuid.UUID, email string) ([]*models.Tenant, error)

	// Membership methods
	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	ListMemberships(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error)
	// FindActiveMembership resolves the caller's membership in a tenant,
	// matched by user id or case-insensitive email.
	FindActiveMembership(ctx context.Context, tenantID, userID uuid.UUID, email string) (*models.Membership, error)
	FindInvitedMembershipsByEmail(ctx context.Context, email string) ([]*models.Membership, error)

	// Customer methods
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error
	ListCustomers(ctx context.Context, f CustomerFilters) ([]*models.Customer, error)

	// Loan type methods
	CreateLoanType(ctx context.Context, lt *models.LoanType) error
	GetLoanType(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanType, error)
	FindLoanTypeByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.LoanType, error)
	UpdateLoanType(ctx context.Context, lt *models.LoanType) error
	// DeleteLoanType also deletes the loan type's checklist mappings.
	DeleteLoanType(ctx context.Context, tenantID, id uuid.UUID) error
	ListLoanTypes(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.LoanType, error)

	// Document checklist methods
	CreateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error
	GetChecklistItem(ctx context.Context, tenantID, id uuid.UUID) (*models.DocumentChecklistItem, error)
	FindChecklistItemByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DocumentChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error
	DeleteChecklistItem(ctx context.Context, tenantID, id uuid.UUID) error
	ListChecklistItems(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.DocumentChecklistItem, error)

	// Pipeline stage methods
	CreateStage(ctx context.Context, st *models.PipelineStage) error
	GetStage(ctx context.Context, tenantID, id uuid.UUID) (*models.PipelineStage, error)
	FindStageByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.PipelineStage, error)
	UpdateStage(ctx context.Context, st *models.PipelineStage) error
	DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error
	ListStages(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.PipelineStage, error)

	// Checklist mapping methods
	ListLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID) ([]*models.LoanTypeDocument, error)
	// ReplaceLoanTypeDocuments deletes the existing mapping set for the
	// loan type and inserts the submitted one.
	ReplaceLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID, docs []*models.LoanTypeDocument) error

	// Loan case methods
	CreateCase(ctx context.Context, c *models.LoanCase) error
	GetCase(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanCase, error)
	UpdateCase(ctx context.Context, c *models.LoanCase) error
	// UpdateCaseStage moves a case to a stage without touching any
	// other field.
	UpdateCaseStage(ctx context.Context, tenantID, id, stageID uuid.UUID) (time.Time, error)
	ListCases(ctx context.Context, f CaseFilters) ([]*models.LoanCase, error)

	// Dashboard methods
	CountCustomers(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID) (int64, error)
	CountCases(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) (int64, error)
	CustomerTrend(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID, since time.Time) ([]TrendBucket, error)
	CaseTrend(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID, since time.Time) ([]TrendBucket, error)
	StageBreakdown(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) ([]StageCount, error)
	AgentLeaderboard(ctx context.Context, tenantID uuid.UUID, limit int) ([]AgentCount, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, f EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// CustomerFilters represents filters for customer list queries
type CustomerFilters struct {
	TenantID uuid.UUID
	// CreatedBy restricts results to a single creator (USER role scope).
	CreatedBy *uuid.UUID
	Search    string
	Limit     int
}

// CaseFilters represents filters for loan case list queries
type CaseFilters struct {
	TenantID        uuid.UUID
	StageID         *uuid.UUID
	AssignedAgentID *uuid.UUID
	CustomerID      *uuid.UUID
	// ViewerID restricts results to cases created by or assigned to the
	// viewer (USER role scope).
	ViewerID *uuid.UUID
	Limit    int
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	TenantID  *uuid.UUID
	CaseID    *uuid.UUID
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}

// TrendBucket is one weekly bucket of a created-at trend
type TrendBucket struct {
	WeekStart time.Time `json:"weekStart"`
	Count     int64     `json:"count"`
}

// StageCount is one bucket of the stage-breakdown histogram.
// StageName is empty when the stage has been deleted out from under
// its cases.
type StageCount struct {
	StageID   *uuid.UUID `json:"stageId,omitempty"`
	StageName string     `json:"stageName,omitempty"`
	Count     int64      `json:"count"`
}

// AgentCount is one row of the agents-by-case-count leaderboard
type AgentCount struct {
	AgentID uuid.UUID `json:"agentId"`
	Count   int64     `json:"count"`
}
