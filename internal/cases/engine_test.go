package cases

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

type fixture struct {
	store    *storage.MemoryStore
	engine   *Engine
	tenantID uuid.UUID
	userID   uuid.UUID
	customer *models.Customer
	loanType *models.LoanType
	stageA   *models.PipelineStage
	stageB   *models.PipelineStage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	user := &models.User{Email: "agent@example.com", FullName: "Agent One", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	tenant := &models.Tenant{Name: "Acme Loans", Type: models.TenantTypeCompany, Status: models.TenantStatusActive, CreatedBy: user.ID}
	require.NoError(t, store.CreateTenant(ctx, tenant))

	userID := user.ID
	require.NoError(t, store.CreateMembership(ctx, &models.Membership{
		TenantID: tenant.ID,
		UserID:   &userID,
		Email:    user.Email,
		Role:     models.RoleAdmin,
		Status:   models.MembershipActive,
	}))

	customer := &models.Customer{
		TenantModel:    models.TenantModel{TenantID: tenant.ID},
		FullName:       "Ravi Kumar",
		Mobile:         "9876543210",
		EmploymentType: models.EmploymentSalaried,
		Source:         models.SourceWalkIn,
		CreatedBy:      user.ID,
	}
	require.NoError(t, store.CreateCustomer(ctx, customer))

	loanType := &models.LoanType{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		Code:        "HL",
		Name:        "Home Loan",
		IsActive:    true,
	}
	require.NoError(t, store.CreateLoanType(ctx, loanType))

	stageA := &models.PipelineStage{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "Lead", SortOrder: 1}
	stageB := &models.PipelineStage{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "Sanctioned", SortOrder: 2}
	require.NoError(t, store.CreateStage(ctx, stageA))
	require.NoError(t, store.CreateStage(ctx, stageB))

	return &fixture{
		store:    store,
		engine:   NewEngine(store),
		tenantID: tenant.ID,
		userID:   user.ID,
		customer: customer,
		loanType: loanType,
		stageA:   stageA,
		stageB:   stageB,
	}
}

func (f *fixture) addChecklistItem(t *testing.T, name string, status models.MappingStatus) *models.DocumentChecklistItem {
	t.Helper()
	ctx := context.Background()
	item := &models.DocumentChecklistItem{
		TenantModel: models.TenantModel{TenantID: f.tenantID},
		Name:        name,
		IsActive:    true,
	}
	require.NoError(t, f.store.CreateChecklistItem(ctx, item))

	existing, err := f.store.ListLoanTypeDocuments(ctx, f.tenantID, f.loanType.ID)
	require.NoError(t, err)
	existing = append(existing, &models.LoanTypeDocument{
		TenantModel: models.TenantModel{TenantID: f.tenantID},
		LoanTypeID:  f.loanType.ID,
		DocumentID:  item.ID,
		Status:      status,
	})
	require.NoError(t, f.store.ReplaceLoanTypeDocuments(ctx, f.tenantID, f.loanType.ID, existing))
	return item
}

func (f *fixture) createCase(t *testing.T) *models.LoanCase {
	t.Helper()
	c, err := f.engine.Create(context.Background(), f.tenantID, f.userID, CreateInput{
		CustomerID:      f.customer.ID,
		LoanTypeID:      f.loanType.ID,
		StageID:         f.stageA.ID,
		RequestedAmount: 500000,
	})
	require.NoError(t, err)
	return c
}

func TestChecklistSnapshot(t *testing.T) {
	f := newFixture(t)

	f.addChecklistItem(t, "Salary Slip", models.MappingRequired)
	f.addChecklistItem(t, "Aadhaar Card", models.MappingOptional)
	f.addChecklistItem(t, "Old Passport", models.MappingInactive)

	c := f.createCase(t)

	// INACTIVE mappings excluded, sorted alphabetically, all PENDING
	require.Len(t, c.Documents, 2)
	require.Equal(t, "Aadhaar Card", c.Documents[0].DocumentName)
	require.Equal(t, "Salary Slip", c.Documents[1].DocumentName)
	for _, d := range c.Documents {
		require.Equal(t, models.DocumentPending, d.Status)
	}
	require.True(t, c.IsLocked)
}

func TestChecklistSnapshotSkipsDeletedItems(t *testing.T) {
	f := newFixture(t)

	item := f.addChecklistItem(t, "Salary Slip", models.MappingRequired)
	f.addChecklistItem(t, "PAN Card", models.MappingRequired)

	// Deleting the item orphans its mapping; the snapshot must drop it
	// instead of failing.
	require.NoError(t, f.store.DeleteChecklistItem(context.Background(), f.tenantID, item.ID))

	c := f.createCase(t)
	require.Len(t, c.Documents, 1)
	require.Equal(t, "PAN Card", c.Documents[0].DocumentName)
}

func TestSnapshotDoesNotFollowLaterMappingChanges(t *testing.T) {
	f := newFixture(t)
	f.addChecklistItem(t, "Salary Slip", models.MappingRequired)

	c := f.createCase(t)
	require.Len(t, c.Documents, 1)

	// Adding documents to the mapping afterwards must not appear on the
	// existing case.
	f.addChecklistItem(t, "Bank Statement", models.MappingRequired)

	got, err := f.store.GetCase(context.Background(), f.tenantID, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Documents, 1)
}

func TestCreateValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := CreateInput{
		CustomerID:      f.customer.ID,
		LoanTypeID:      f.loanType.ID,
		StageID:         f.stageA.ID,
		RequestedAmount: 100000,
	}

	in := base
	in.CustomerID = uuid.New()
	_, err := f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorIs(t, err, ErrInvalidCustomer)

	in = base
	in.LoanTypeID = uuid.New()
	_, err = f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorIs(t, err, ErrInvalidLoanType)

	in = base
	in.StageID = uuid.New()
	_, err = f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorIs(t, err, ErrInvalidStage)

	in = base
	outsider := uuid.New()
	in.AssignedAgentID = &outsider
	_, err = f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorIs(t, err, ErrAgentNotInTenant)
}

func TestCreateRejectsBadAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CreateInput{
		CustomerID:      f.customer.ID,
		LoanTypeID:      f.loanType.ID,
		StageID:         f.stageA.ID,
		RequestedAmount: 0,
	}
	_, err := f.engine.Create(ctx, f.tenantID, f.userID, in)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "requestedAmount")

	in.RequestedAmount = -100
	_, err = f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "requestedAmount")

	in.RequestedAmount = 100000
	tenure := -6
	in.TenureMonths = &tenure
	_, err = f.engine.Create(ctx, f.tenantID, f.userID, in)
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "tenureMonths")
}

func TestUpdateImmutableFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCase(t)

	otherCustomer := uuid.New()
	_, err := f.engine.Update(ctx, c, UpdatePatch{CustomerID: &otherCustomer})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "customerId")

	otherLoanType := uuid.New()
	_, err = f.engine.Update(ctx, c, UpdatePatch{LoanTypeID: &otherLoanType})
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "loanTypeId")

	// Re-submitting the existing values is not a change and passes.
	same := c.CustomerID
	_, err = f.engine.Update(ctx, c, UpdatePatch{CustomerID: &same})
	require.NoError(t, err)
}

func TestUpdateDocumentsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addChecklistItem(t, "Salary Slip", models.MappingRequired)
	f.addChecklistItem(t, "PAN Card", models.MappingRequired)

	c := f.createCase(t)
	require.Len(t, c.Documents, 2)
	docID := c.Documents[0].DocumentID

	// One valid entry plus one unknown id rejects the whole array.
	_, err := f.engine.Update(ctx, c, UpdatePatch{
		DocumentsSet: true,
		Documents: []DocumentPatch{
			{DocumentID: docID, Status: models.DocumentCollected},
			{DocumentID: uuid.New(), Status: models.DocumentCollected},
		},
	})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	got, err := f.store.GetCase(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.DocumentPending, got.Documents[0].Status)

	// Bad status rejects too.
	_, err = f.engine.Update(ctx, c, UpdatePatch{
		DocumentsSet: true,
		Documents:    []DocumentPatch{{DocumentID: docID, Status: "SHREDDED"}},
	})
	require.ErrorAs(t, err, &fieldErrs)

	// A fully valid array replaces the snapshot.
	updated, err := f.engine.Update(ctx, c, UpdatePatch{
		DocumentsSet: true,
		Documents: []DocumentPatch{
			{DocumentID: docID, Status: models.DocumentCollected},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Documents, 1)
	require.Equal(t, models.DocumentCollected, updated.Documents[0].Status)
}

func TestUpdateScalarsPersistWhenDocumentsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addChecklistItem(t, "Salary Slip", models.MappingRequired)
	c := f.createCase(t)

	// A rejected documents array still reports its field errors, but the
	// unrelated scalar patches in the same request land anyway.
	bank := "HDFC"
	amount := 900000.0
	_, err := f.engine.Update(ctx, c, UpdatePatch{
		BankName:        &bank,
		RequestedAmount: &amount,
		DocumentsSet:    true,
		Documents:       []DocumentPatch{{DocumentID: uuid.New(), Status: models.DocumentCollected}},
	})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "documents[0].documentId")

	got, err := f.store.GetCase(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, "HDFC", got.BankName)
	require.Equal(t, 900000.0, got.RequestedAmount)
	require.Equal(t, models.DocumentPending, got.Documents[0].Status)
}

func TestUpdateUnrelatedFieldsApplyAlongsideDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addChecklistItem(t, "Salary Slip", models.MappingRequired)
	c := f.createCase(t)

	bank := "HDFC"
	amount := 750000.0
	updated, err := f.engine.Update(ctx, c, UpdatePatch{
		BankName:        &bank,
		RequestedAmount: &amount,
		DocumentsSet:    true,
		Documents: []DocumentPatch{
			{DocumentID: c.Documents[0].DocumentID, Status: models.DocumentApproved},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "HDFC", updated.BankName)
	require.Equal(t, 750000.0, updated.RequestedAmount)
	require.Equal(t, models.DocumentApproved, updated.Documents[0].Status)
}

func TestUpdateAgentClearAndReassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCase(t)

	agentID := f.userID
	updated, err := f.engine.Update(ctx, c, UpdatePatch{AgentSet: true, AgentID: &agentID})
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedAgentID)
	require.Equal(t, agentID, *updated.AssignedAgentID)

	// Explicit null clears the assignment.
	updated, err = f.engine.Update(ctx, c, UpdatePatch{AgentSet: true})
	require.NoError(t, err)
	require.Nil(t, updated.AssignedAgentID)

	outsider := uuid.New()
	_, err = f.engine.Update(ctx, c, UpdatePatch{AgentSet: true, AgentID: &outsider})
	require.ErrorIs(t, err, ErrAgentNotInTenant)
}

func TestMoveStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCase(t)

	_, changed, err := f.engine.MoveStage(ctx, c, f.stageB.ID)
	require.NoError(t, err)
	require.True(t, changed)

	got, err := f.store.GetCase(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, f.stageB.ID, got.StageID)

	// Same stage is an idempotent no-op and leaves updatedAt untouched.
	before := got.UpdatedAt
	updatedAt, changed, err := f.engine.MoveStage(ctx, got, f.stageB.ID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, before, updatedAt)

	after, err := f.store.GetCase(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, before, after.UpdatedAt)

	// Stage from another tenant (or nonexistent) rejects.
	_, _, err = f.engine.MoveStage(ctx, got, uuid.New())
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestCanAccess(t *testing.T) {
	creator := uuid.New()
	agent := uuid.New()
	stranger := uuid.New()

	c := &models.LoanCase{CreatedBy: creator, AssignedAgentID: &agent}

	require.True(t, CanAccess(models.RoleOwner, stranger, c))
	require.True(t, CanAccess(models.RoleAdmin, stranger, c))
	require.True(t, CanAccess(models.RoleUser, creator, c))
	require.True(t, CanAccess(models.RoleUser, agent, c))
	require.False(t, CanAccess(models.RoleUser, stranger, c))
}
