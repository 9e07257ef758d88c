package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DocumentStatus represents the collection status of a case document
type DocumentStatus string

const (
	DocumentPending         DocumentStatus = "PENDING"
	DocumentCollected       DocumentStatus = "COLLECTED"
	DocumentSubmittedToBank DocumentStatus = "SUBMITTED_TO_BANK"
	DocumentApproved        DocumentStatus = "APPROVED"
)

// Valid reports whether the status is one of the known values.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentCollected, DocumentSubmittedToBank, DocumentApproved:
		return true
	}
	return false
}

// CaseDocument is one entry of a case's checklist snapshot
type CaseDocument struct {
	DocumentID   uuid.UUID      `json:"documentId"`
	DocumentName string         `json:"documentName"`
	Status       DocumentStatus `json:"status"`
}

// CaseDocuments is the checklist snapshot stored as a JSON column.
// It is materialized from the loan type's mapping at creation time and
// never re-joined against the catalog afterwards.
type CaseDocuments []CaseDocument

// Value implements driver.Valuer
func (d CaseDocuments) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(CaseDocuments{})
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *CaseDocuments) Scan(value interface{}) error {
	if value == nil {
		*d = CaseDocuments{}
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, d)
	case string:
		return json.Unmarshal([]byte(data), d)
	default:
		return fmt.Errorf("unsupported type for CaseDocuments: %T", value)
	}
}

// LoanCase represents a loan application moving through the pipeline.
// CustomerID and LoanTypeID are immutable once IsLocked is set, which
// happens at creation.
type LoanCase struct {
	TenantModel

	CustomerID uuid.UUID `json:"customerId" db:"customer_id"`
	LoanTypeID uuid.UUID `json:"loanTypeId" db:"loan_type_id"`
	StageID    uuid.UUID `json:"stageId" db:"stage_id"`

	BankName        string   `json:"bankName,omitempty" db:"bank_name"`
	RequestedAmount float64  `json:"requestedAmount" db:"requested_amount"`
	EligibleAmount  *float64 `json:"eligibleAmount,omitempty" db:"eligible_amount"`
	InterestRate    *float64 `json:"interestRate,omitempty" db:"interest_rate"`
	TenureMonths    *int     `json:"tenureMonths,omitempty" db:"tenure_months"`
	EMI             *float64 `json:"emi,omitempty" db:"emi"`

	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty" db:"assigned_agent_id"`

	Documents CaseDocuments `json:"documents" db:"documents"`

	IsLocked  bool      `json:"isLocked" db:"is_locked"`
	CreatedBy uuid.UUID `json:"createdBy" db:"created_by"`
}

// CaseDetail is a LoanCase with display names resolved for the detail view
type CaseDetail struct {
	LoanCase

	CustomerName string `json:"customerName"`
	LoanTypeName string `json:"loanTypeName"`
	StageName    string `json:"stageName,omitempty"`
	AgentName    string `json:"agentName,omitempty"`
}
