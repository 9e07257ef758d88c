package cases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

// Referential-integrity errors. Each maps to a 400 with its own code at
// the handler boundary.
var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidLoanType  = errors.New("invalid_loanType")
	ErrInvalidStage     = errors.New("invalid_stage")
	ErrAgentNotInTenant = errors.New("agent_not_in_tenant")
)

// FieldErrors carries field-level validation failures as a
// field -> message map.
type FieldErrors map[string]string

// Error implements the error interface
func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// Engine implements the loan-case lifecycle: creation with a checklist
// snapshot, sparse updates with immutable-field and documents-array
// rules, and stage transitions. Stages are tenant data, not code
// constants, so the only transition rule is "the target stage belongs
// to this tenant".
type Engine struct {
	store storage.Store
}

// NewEngine creates a new loan case engine
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// CreateInput carries the fields accepted at case creation
type CreateInput struct {
	CustomerID      uuid.UUID
	LoanTypeID      uuid.UUID
	StageID         uuid.UUID
	BankName        string
	RequestedAmount float64
	EligibleAmount  *float64
	InterestRate    *float64
	TenureMonths    *int
	EMI             *float64
	AssignedAgentID *uuid.UUID
}

// DocumentPatch is one submitted entry of a documents-array update
type DocumentPatch struct {
	DocumentID uuid.UUID
	Status     models.DocumentStatus
}

// UpdatePatch is a sparse case update. Nil pointers mean "absent".
// AgentSet distinguishes "clear the agent" (true, nil id) from
// "leave it alone" (false).
type UpdatePatch struct {
	CustomerID      *uuid.UUID
	LoanTypeID      *uuid.UUID
	StageID         *uuid.UUID
	BankName        *string
	RequestedAmount *float64
	EligibleAmount  *float64
	InterestRate    *float64
	TenureMonths    *int
	EMI             *float64
	AgentSet        bool
	AgentID         *uuid.UUID
	Documents       []DocumentPatch
	DocumentsSet    bool
}

// CanAccess reports whether the caller may read or mutate the case.
// OWNER/ADMIN see everything; USER only cases they created or are
// assigned to.
func CanAccess(role models.Role, userID uuid.UUID, c *models.LoanCase) bool {
	if role.CanManageTenant() {
		return true
	}
	if c.CreatedBy == userID {
		return true
	}
	return c.AssignedAgentID != nil && *c.AssignedAgentID == userID
}

// validateAmounts checks the numeric fields shared by create and update
func validateAmounts(requested *float64, eligible, rate, emi *float64, tenure *int) FieldErrors {
	fieldErrs := FieldErrors{}

	if requested != nil {
		if math.IsNaN(*requested) || math.IsInf(*requested, 0) || *requested <= 0 {
			fieldErrs["requestedAmount"] = "must be a positive number"
		}
	}
	for name, v := range map[string]*float64{
		"eligibleAmount": eligible,
		"interestRate":   rate,
		"emi":            emi,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			fieldErrs[name] = "must be a finite number"
		}
	}
	if tenure != nil && *tenure < 0 {
		fieldErrs["tenureMonths"] = "must not be negative"
	}

	if len(fieldErrs) == 0 {
		return nil
	}
	return fieldErrs
}

// verifyAgent checks that the agent holds an active membership in the
// tenant
func (e *Engine) verifyAgent(ctx context.Context, tenantID, agentID uuid.UUID) error {
	_, err := e.store.FindActiveMembership(ctx, tenantID, agentID, "")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrAgentNotInTenant
		}
		return err
	}
	return nil
}

// BuildChecklistSnapshot materializes the loan type's current mapping
// into a case checklist: REQUIRED and OPTIONAL entries resolved to
// their current item names, orphaned mappings dropped, sorted
// alphabetically, all PENDING.
func (e *Engine) BuildChecklistSnapshot(ctx context.Context, tenantID, loanTypeID uuid.UUID) (models.CaseDocuments, error) {
	mappings, err := e.store.ListLoanTypeDocuments(ctx, tenantID, loanTypeID)
	if err != nil {
		return nil, fmt.Errorf("list checklist mapping: %w", err)
	}

	docs := models.CaseDocuments{}
	for _, m := range mappings {
		if m.Status != models.MappingRequired && m.Status != models.MappingOptional {
			continue
		}

		item, err := e.store.GetChecklistItem(ctx, tenantID, m.DocumentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if strings.TrimSpace(item.Name) == "" {
			continue
		}

		docs = append(docs, models.CaseDocument{
			DocumentID:   m.DocumentID,
			DocumentName: item.Name,
			Status:       models.DocumentPending,
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentName < docs[j].DocumentName
	})

	return docs, nil
}

// Create validates references against the tenant, snapshots the
// checklist, and persists the case locked.
func (e *Engine) Create(ctx context.Context, tenantID, createdBy uuid.UUID, in CreateInput) (*models.LoanCase, error) {
	if fieldErrs := validateAmounts(&in.RequestedAmount, in.EligibleAmount, in.InterestRate, in.EMI, in.TenureMonths); fieldErrs != nil {
		return nil, fieldErrs
	}

	if _, err := e.store.GetCustomer(ctx, tenantID, in.CustomerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCustomer
		}
		return nil, err
	}
	if _, err := e.store.GetLoanType(ctx, tenantID, in.LoanTypeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidLoanType
		}
		return nil, err
	}
	if _, err := e.store.GetStage(ctx, tenantID, in.StageID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidStage
		}
		return nil, err
	}
	if in.AssignedAgentID != nil {
		if err := e.verifyAgent(ctx, tenantID, *in.AssignedAgentID); err != nil {
			return nil, err
		}
	}

	docs, err := e.BuildChecklistSnapshot(ctx, tenantID, in.LoanTypeID)
	if err != nil {
		return nil, err
	}

	c := &models.LoanCase{
		TenantModel:     models.TenantModel{TenantID: tenantID},
		CustomerID:      in.CustomerID,
		LoanTypeID:      in.LoanTypeID,
		StageID:         in.StageID,
		BankName:        in.BankName,
		RequestedAmount: in.RequestedAmount,
		EligibleAmount:  in.EligibleAmount,
		InterestRate:    in.InterestRate,
		TenureMonths:    in.TenureMonths,
		EMI:             in.EMI,
		AssignedAgentID: in.AssignedAgentID,
		Documents:       docs,
		// Locked from the first save; gates customerId/loanTypeId
		// immutability on later edits.
		IsLocked:  true,
		CreatedBy: createdBy,
	}

	if err := e.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// applyDocuments validates the submitted documents array against the
// case's current snapshot. All-or-nothing: any invalid entry rejects
// the whole array and leaves the stored one untouched.
func applyDocuments(c *models.LoanCase, patches []DocumentPatch) FieldErrors {
	known := make(map[uuid.UUID]string, len(c.Documents))
	for _, d := range c.Documents {
		known[d.DocumentID] = d.DocumentName
	}

	replacement := make(models.CaseDocuments, 0, len(patches))
	for i, p := range patches {
		name, ok := known[p.DocumentID]
		if !ok {
			return FieldErrors{fmt.Sprintf("documents[%d].documentId", i): "document is not part of this case"}
		}
		if !p.Status.Valid() {
			return FieldErrors{fmt.Sprintf("documents[%d].status", i): "invalid document status"}
		}
		replacement = append(replacement, models.CaseDocument{
			DocumentID:   p.DocumentID,
			DocumentName: name,
			Status:       p.Status,
		})
	}

	c.Documents = replacement
	return nil
}

// Update applies a sparse patch to the case. customerId/loanTypeId are
// immutable once the case is locked; the documents array validates as a
// unit while unrelated top-level fields still apply.
func (e *Engine) Update(ctx context.Context, c *models.LoanCase, patch UpdatePatch) (*models.LoanCase, error) {
	fieldErrs := FieldErrors{}

	if c.IsLocked {
		if patch.CustomerID != nil && *patch.CustomerID != c.CustomerID {
			fieldErrs["customerId"] = "cannot be changed after creation"
		}
		if patch.LoanTypeID != nil && *patch.LoanTypeID != c.LoanTypeID {
			fieldErrs["loanTypeId"] = "cannot be changed after creation"
		}
	}

	if amountErrs := validateAmounts(patch.RequestedAmount, patch.EligibleAmount, patch.InterestRate, patch.EMI, patch.TenureMonths); amountErrs != nil {
		for k, v := range amountErrs {
			fieldErrs[k] = v
		}
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	if patch.StageID != nil {
		if _, err := e.store.GetStage(ctx, c.TenantID, *patch.StageID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrInvalidStage
			}
			return nil, err
		}
		c.StageID = *patch.StageID
	}

	if patch.AgentSet {
		if patch.AgentID != nil {
			if err := e.verifyAgent(ctx, c.TenantID, *patch.AgentID); err != nil {
				return nil, err
			}
		}
		c.AssignedAgentID = patch.AgentID
	}

	// The documents array is atomic on its own: a rejected array leaves
	// the stored snapshot untouched but never blocks the unrelated
	// scalar patches below.
	var docErrs FieldErrors
	if patch.DocumentsSet {
		docErrs = applyDocuments(c, patch.Documents)
	}

	if patch.BankName != nil {
		c.BankName = *patch.BankName
	}
	if patch.RequestedAmount != nil {
		c.RequestedAmount = *patch.RequestedAmount
	}
	if patch.EligibleAmount != nil {
		c.EligibleAmount = patch.EligibleAmount
	}
	if patch.InterestRate != nil {
		c.InterestRate = patch.InterestRate
	}
	if patch.TenureMonths != nil {
		c.TenureMonths = patch.TenureMonths
	}
	if patch.EMI != nil {
		c.EMI = patch.EMI
	}

	if err := e.store.UpdateCase(ctx, c); err != nil {
		return nil, err
	}

	if docErrs != nil {
		return nil, docErrs
	}

	return c, nil
}

// MoveStage transitions the case to the target stage. Moving to the
// current stage is an idempotent no-op that does not touch updatedAt.
// Document completion never gates stage movement.
func (e *Engine) MoveStage(ctx context.Context, c *models.LoanCase, stageID uuid.UUID) (time.Time, bool, error) {
	if _, err := e.store.GetStage(ctx, c.TenantID, stageID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, false, ErrInvalidStage
		}
		return time.Time{}, false, err
	}

	if c.StageID == stageID {
		return c.UpdatedAt, false, nil
	}

	updatedAt, err := e.store.UpdateCaseStage(ctx, c.TenantID, c.ID, stageID)
	if err != nil {
		return time.Time{}, false, err
	}

	return updatedAt, true, nil
}
