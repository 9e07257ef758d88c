package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loanflow-server/loanflow-server/internal/config"
	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
	"github.com/loanflow-server/loanflow-server/pkg/crypto"
)

type testEnv struct {
	t      *testing.T
	server *RESTServer
	store  *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
	}
	store := storage.NewMemoryStore()
	return &testEnv{
		t:      t,
		server: NewRESTServer(cfg, store, nil),
		store:  store,
	}
}

// seedUser creates a user and returns it with a bearer token
func (e *testEnv) seedUser(email, fullName string) (*models.User, string) {
	e.t.Helper()
	hash, err := crypto.HashPassword("password123")
	require.NoError(e.t, err)

	user := &models.User{Email: email, FullName: fullName, PasswordHash: hash, IsActive: true}
	require.NoError(e.t, e.store.CreateUser(context.Background(), user))

	token, _, err := e.server.auth.GenerateTokenPair(user, nil)
	require.NoError(e.t, err)
	return user, token
}

// seedTenant creates a tenant with the user as an active member
func (e *testEnv) seedTenant(name string, user *models.User, role models.Role) *models.Tenant {
	e.t.Helper()
	ctx := context.Background()

	tenant := &models.Tenant{Name: name, Type: models.TenantTypeCompany, Status: models.TenantStatusActive, CreatedBy: user.ID}
	require.NoError(e.t, e.store.CreateTenant(ctx, tenant))

	userID := user.ID
	require.NoError(e.t, e.store.CreateMembership(ctx, &models.Membership{
		TenantID: tenant.ID,
		UserID:   &userID,
		Email:    user.Email,
		Role:     role,
		Status:   models.MembershipActive,
	}))
	return tenant
}

// do performs a request against the router
func (e *testEnv) do(method, path, token string, tenantID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tenantID != uuid.Nil {
		req.Header.Set("X-Tenant-ID", tenantID.String())
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/auth/register", "", uuid.Nil, map[string]string{
		"email":    "owner@example.com",
		"password": "password123",
		"fullName": "Owner One",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate email conflicts
	rec = e.do(http.MethodPost, "/auth/register", "", uuid.Nil, map[string]string{
		"email":    "Owner@Example.com",
		"password": "password123",
		"fullName": "Owner Two",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPost, "/auth/login", "", uuid.Nil, map[string]string{
		"email":    "owner@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])

	rec = e.do(http.MethodPost, "/auth/refresh", "", uuid.Nil, map[string]string{
		"refreshToken": body["refreshToken"].(string),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/auth/login", "", uuid.Nil, map[string]string{
		"email":    "owner@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantMembershipRequired(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	_, strangerToken := e.seedUser("stranger@example.com", "Stranger")

	// A user without membership in the tenant gets not_member.
	rec := e.do(http.MethodGet, "/customers", strangerToken, tenant.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "not_member", decodeBody(t, rec)["error"])

	rec = e.do(http.MethodGet, "/customers", ownerToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// No token at all
	rec = e.do(http.MethodGet, "/customers", "", tenant.ID, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokedMemberLosesAccessImmediately(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	agent, agentToken := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	member := &models.Membership{
		TenantID: tenant.ID,
		UserID:   &agentID,
		Email:    agent.Email,
		Role:     models.RoleUser,
		Status:   models.MembershipActive,
	}
	require.NoError(t, e.store.CreateMembership(context.Background(), member))

	rec := e.do(http.MethodGet, "/customers", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPut, fmt.Sprintf("/tenants/%s/members/%s/revoke", tenant.ID, member.ID), ownerToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The token is still valid but membership is re-derived per request.
	rec = e.do(http.MethodGet, "/customers", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "not_member", decodeBody(t, rec)["error"])
}

func TestCustomerDuplicateMobilePerTenant(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenantA := e.seedTenant("Tenant A", owner, models.RoleOwner)
	tenantB := e.seedTenant("Tenant B", owner, models.RoleOwner)

	payload := map[string]interface{}{
		"fullName":       "Ravi Kumar",
		"mobile":         "9876543210",
		"employmentType": "SALARIED",
		"source":         "WALK_IN",
	}

	rec := e.do(http.MethodPost, "/customers", token, tenantA.ID, payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same mobile in the same tenant conflicts
	rec = e.do(http.MethodPost, "/customers", token, tenantA.ID, payload)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate_mobile", decodeBody(t, rec)["error"])

	// Same mobile in another tenant is fine; uniqueness is per tenant
	rec = e.do(http.MethodPost, "/customers", token, tenantB.ID, payload)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCustomerValidation(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	rec := e.do(http.MethodPost, "/customers", token, tenant.ID, map[string]interface{}{
		"fullName": "X",
		"mobile":   "12345",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "validation_error", body["error"])
	details := body["details"].(map[string]interface{})
	require.Contains(t, details, "fullName")
	require.Contains(t, details, "mobile")

	// Aadhaar is stored masked
	rec = e.do(http.MethodPost, "/customers", token, tenant.ID, map[string]interface{}{
		"fullName": "Ravi Kumar",
		"mobile":   "9876543210",
		"aadhaar":  "1234 5678 9012",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	require.Equal(t, "XXXX-XXXX-9012", created["aadhaarMasked"])

	// CIBIL range
	rec = e.do(http.MethodPost, "/customers", token, tenant.ID, map[string]interface{}{
		"fullName":   "Sita Devi",
		"mobile":     "9876543211",
		"cibilScore": 250,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Email format is checked on update too
	customerID := created["id"].(string)
	rec = e.do(http.MethodPut, "/customers/"+customerID, token, tenant.ID, map[string]interface{}{
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decodeBody(t, rec)
	require.Equal(t, "validation_error", body["error"])
	require.Contains(t, body["details"].(map[string]interface{}), "email")

	rec = e.do(http.MethodPut, "/customers/"+customerID, token, tenant.ID, map[string]interface{}{
		"email": "ravi@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ravi@example.com", decodeBody(t, rec)["email"])
}

func TestUserRoleSeesOnlyOwnCustomers(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	agent, agentToken := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	require.NoError(t, e.store.CreateMembership(context.Background(), &models.Membership{
		TenantID: tenant.ID, UserID: &agentID, Email: agent.Email,
		Role: models.RoleUser, Status: models.MembershipActive,
	}))

	rec := e.do(http.MethodPost, "/customers", ownerToken, tenant.ID, map[string]interface{}{
		"fullName": "Owner Customer", "mobile": "9000000001",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ownerCustomerID := decodeBody(t, rec)["id"].(string)

	rec = e.do(http.MethodPost, "/customers", agentToken, tenant.ID, map[string]interface{}{
		"fullName": "Agent Customer", "mobile": "9000000002",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// USER sees only its own customer
	rec = e.do(http.MethodGet, "/customers", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["customers"].([]interface{})
	require.Len(t, list, 1)

	// and cannot fetch the owner's customer directly
	rec = e.do(http.MethodGet, "/customers/"+ownerCustomerID, agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// OWNER sees both
	rec = e.do(http.MethodGet, "/customers", ownerToken, tenant.ID, nil)
	list = decodeBody(t, rec)["customers"].([]interface{})
	require.Len(t, list, 2)
}

func TestCatalogDuplicateNameCaseInsensitive(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	rec := e.do(http.MethodPost, "/loan-types", token, tenant.ID, map[string]interface{}{
		"code": "HL", "name": "Home Loan",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(http.MethodPost, "/loan-types", token, tenant.ID, map[string]interface{}{
		"code": "HL2", "name": "home loan",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate_name", decodeBody(t, rec)["error"])

	// Whitespace-padded single char rejects
	rec = e.do(http.MethodPost, "/document-checklist", token, tenant.ID, map[string]interface{}{
		"name": "  a  ",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Stage names share the same rule
	rec = e.do(http.MethodPost, "/loan-status-pipeline", token, tenant.ID, map[string]interface{}{
		"name": "Lead", "order": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = e.do(http.MethodPost, "/loan-status-pipeline", token, tenant.ID, map[string]interface{}{
		"name": "LEAD", "order": 2,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCatalogWritesNeedManageRole(t *testing.T) {
	e := newTestEnv(t)
	owner, _ := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	agent, agentToken := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	require.NoError(t, e.store.CreateMembership(context.Background(), &models.Membership{
		TenantID: tenant.ID, UserID: &agentID, Email: agent.Email,
		Role: models.RoleUser, Status: models.MembershipActive,
	}))

	rec := e.do(http.MethodPost, "/loan-types", agentToken, tenant.ID, map[string]interface{}{
		"code": "HL", "name": "Home Loan",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decodeBody(t, rec)["error"])

	// Reads are open to all members
	rec = e.do(http.MethodGet, "/loan-types", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChecklistMappingReplace(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	ctx := context.Background()

	lt := &models.LoanType{TenantModel: models.TenantModel{TenantID: tenant.ID}, Code: "HL", Name: "Home Loan", IsActive: true}
	require.NoError(t, e.store.CreateLoanType(ctx, lt))

	doc1 := &models.DocumentChecklistItem{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "Salary Slip", IsActive: true}
	doc2 := &models.DocumentChecklistItem{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "PAN Card", IsActive: true}
	require.NoError(t, e.store.CreateChecklistItem(ctx, doc1))
	require.NoError(t, e.store.CreateChecklistItem(ctx, doc2))

	path := fmt.Sprintf("/loan-types/%s/documents", lt.ID)

	rec := e.do(http.MethodPut, path, token, tenant.ID, map[string]interface{}{
		"documents": []map[string]interface{}{
			{"documentId": doc1.ID, "status": "REQUIRED"},
			{"documentId": doc2.ID, "status": "OPTIONAL"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["documents"].([]interface{}), 2)

	// Unknown document id rejects the whole set and keeps the old one
	rec = e.do(http.MethodPut, path, token, tenant.ID, map[string]interface{}{
		"documents": []map[string]interface{}{
			{"documentId": uuid.New(), "status": "REQUIRED"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, path, token, tenant.ID, nil)
	require.Len(t, decodeBody(t, rec)["documents"].([]interface{}), 2)

	// In-set duplicates reject
	rec = e.do(http.MethodPut, path, token, tenant.ID, map[string]interface{}{
		"documents": []map[string]interface{}{
			{"documentId": doc1.ID, "status": "REQUIRED"},
			{"documentId": doc1.ID, "status": "OPTIONAL"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Replace with a smaller set drops the rest
	rec = e.do(http.MethodPut, path, token, tenant.ID, map[string]interface{}{
		"documents": []map[string]interface{}{
			{"documentId": doc2.ID, "status": "REQUIRED"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["documents"].([]interface{}), 1)

	// Empty set clears the mapping
	rec = e.do(http.MethodPut, path, token, tenant.ID, map[string]interface{}{
		"documents": []map[string]interface{}{},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["documents"].([]interface{}), 0)
}

// seedCaseFixture creates the reference data a loan case needs
func seedCaseFixture(t *testing.T, e *testEnv, tenant *models.Tenant, creator *models.User) (customer *models.Customer, lt *models.LoanType, stageA, stageB *models.PipelineStage) {
	t.Helper()
	ctx := context.Background()

	customer = &models.Customer{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		FullName:    "Ravi Kumar", Mobile: "9876543210",
		EmploymentType: models.EmploymentSalaried, Source: models.SourceWalkIn,
		CreatedBy: creator.ID,
	}
	require.NoError(t, e.store.CreateCustomer(ctx, customer))

	lt = &models.LoanType{TenantModel: models.TenantModel{TenantID: tenant.ID}, Code: "HL", Name: "Home Loan", IsActive: true}
	require.NoError(t, e.store.CreateLoanType(ctx, lt))

	stageA = &models.PipelineStage{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "Lead", SortOrder: 1}
	stageB = &models.PipelineStage{TenantModel: models.TenantModel{TenantID: tenant.ID}, Name: "Sanctioned", SortOrder: 2}
	require.NoError(t, e.store.CreateStage(ctx, stageA))
	require.NoError(t, e.store.CreateStage(ctx, stageB))
	return
}

func TestLoanCaseLifecycle(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, stageB := seedCaseFixture(t, e, tenant, owner)

	rec := e.do(http.MethodPost, "/loan-cases", token, tenant.ID, map[string]interface{}{
		"customerId":      customer.ID,
		"loanTypeId":      lt.ID,
		"stageId":         stageA.ID,
		"requestedAmount": 500000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	caseID := created["id"].(string)
	require.Equal(t, true, created["isLocked"])

	// Detail view resolves names
	rec = e.do(http.MethodGet, "/loan-cases/"+caseID, token, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody(t, rec)
	require.Equal(t, "Ravi Kumar", detail["customerName"])
	require.Equal(t, "Home Loan", detail["loanTypeName"])
	require.Equal(t, "Lead", detail["stageName"])

	// customerId is immutable once locked
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID, token, tenant.ID, map[string]interface{}{
		"customerId": uuid.New(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "validation_error", body["error"])
	require.Contains(t, body["details"].(map[string]interface{}), "customerId")

	// Stage transition
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID+"/stage", token, tenant.ID, map[string]interface{}{
		"newStageId": stageB.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decodeBody(t, rec)
	require.Equal(t, true, moved["ok"])
	require.Equal(t, true, moved["changed"])

	// Same stage again is a no-op
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID+"/stage", token, tenant.ID, map[string]interface{}{
		"stageId": stageB.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	moved = decodeBody(t, rec)
	require.Equal(t, true, moved["ok"])
	require.Equal(t, false, moved["changed"])

	// Unknown stage rejects
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID+"/stage", token, tenant.ID, map[string]interface{}{
		"newStageId": uuid.New(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_stage", decodeBody(t, rec)["error"])
}

func TestLoanCaseAgentAssignment(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, _ := seedCaseFixture(t, e, tenant, owner)

	agent, _ := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	require.NoError(t, e.store.CreateMembership(context.Background(), &models.Membership{
		TenantID: tenant.ID, UserID: &agentID, Email: agent.Email,
		Role: models.RoleUser, Status: models.MembershipActive,
	}))

	rec := e.do(http.MethodPost, "/loan-cases", token, tenant.ID, map[string]interface{}{
		"customerId":      customer.ID,
		"loanTypeId":      lt.ID,
		"stageId":         stageA.ID,
		"requestedAmount": 500000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	caseID := decodeBody(t, rec)["id"].(string)

	// Assign a tenant member
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID, token, tenant.ID, map[string]interface{}{
		"assignedAgentId": agent.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, agent.ID.String(), decodeBody(t, rec)["assignedAgentId"])

	// Assigning a non-member fails
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID, token, tenant.ID, map[string]interface{}{
		"assignedAgentId": uuid.New(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "agent_not_in_tenant", decodeBody(t, rec)["error"])

	// Explicit null clears the assignment
	rec = e.do(http.MethodPut, "/loan-cases/"+caseID, token, tenant.ID, map[string]interface{}{
		"assignedAgentId": nil,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, present := decodeBody(t, rec)["assignedAgentId"]
	require.False(t, present)
}

func TestUserRoleCaseVisibility(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, _ := seedCaseFixture(t, e, tenant, owner)

	agent, agentToken := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	require.NoError(t, e.store.CreateMembership(context.Background(), &models.Membership{
		TenantID: tenant.ID, UserID: &agentID, Email: agent.Email,
		Role: models.RoleUser, Status: models.MembershipActive,
	}))

	// Owner creates two cases, one assigned to the agent
	rec := e.do(http.MethodPost, "/loan-cases", ownerToken, tenant.ID, map[string]interface{}{
		"customerId": customer.ID, "loanTypeId": lt.ID, "stageId": stageA.ID,
		"requestedAmount": 100000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	unassignedID := decodeBody(t, rec)["id"].(string)

	rec = e.do(http.MethodPost, "/loan-cases", ownerToken, tenant.ID, map[string]interface{}{
		"customerId": customer.ID, "loanTypeId": lt.ID, "stageId": stageA.ID,
		"requestedAmount": 200000, "assignedAgentId": agent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assignedID := decodeBody(t, rec)["id"].(string)

	// Agent only sees the assigned case
	rec = e.do(http.MethodGet, "/loan-cases", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["cases"].([]interface{})
	require.Len(t, list, 1)
	require.Equal(t, assignedID, list[0].(map[string]interface{})["id"])

	rec = e.do(http.MethodGet, "/loan-cases/"+unassignedID, agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Owner sees both
	rec = e.do(http.MethodGet, "/loan-cases", ownerToken, tenant.ID, nil)
	require.Len(t, decodeBody(t, rec)["cases"].([]interface{}), 2)
}

func TestDashboardSummary(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, _ := seedCaseFixture(t, e, tenant, owner)

	agent, agentToken := e.seedUser("agent@example.com", "Agent")
	agentID := agent.ID
	require.NoError(t, e.store.CreateMembership(context.Background(), &models.Membership{
		TenantID: tenant.ID, UserID: &agentID, Email: agent.Email,
		Role: models.RoleUser, Status: models.MembershipActive,
	}))

	rec := e.do(http.MethodPost, "/loan-cases", ownerToken, tenant.ID, map[string]interface{}{
		"customerId": customer.ID, "loanTypeId": lt.ID, "stageId": stageA.ID,
		"requestedAmount": 100000, "assignedAgentId": agent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(http.MethodGet, "/dashboard/summary", ownerToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(1), body["customers"].(map[string]interface{})["total"])
	require.Equal(t, float64(1), body["cases"].(map[string]interface{})["total"])
	require.Contains(t, body, "topAgents")

	stages := body["stages"].([]interface{})
	require.NotEmpty(t, stages)

	// USER gets the summary without the leaderboard
	rec = e.do(http.MethodGet, "/dashboard/summary", agentToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, decodeBody(t, rec), "topAgents")
}

func TestDashboardUnassignedBucket(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, _ := seedCaseFixture(t, e, tenant, owner)

	rec := e.do(http.MethodPost, "/loan-cases", token, tenant.ID, map[string]interface{}{
		"customerId": customer.ID, "loanTypeId": lt.ID, "stageId": stageA.ID,
		"requestedAmount": 100000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Deleting the stage leaves the case pointing at it
	rec = e.do(http.MethodDelete, "/loan-status-pipeline/"+stageA.ID.String(), token, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/dashboard/summary", token, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stages := decodeBody(t, rec)["stages"].([]interface{})

	found := false
	for _, s := range stages {
		row := s.(map[string]interface{})
		if row["stageName"] == "Unassigned" {
			found = true
			require.Equal(t, float64(1), row["count"])
		}
	}
	require.True(t, found, "expected an Unassigned bucket for the deleted stage")
}

func TestInviteAndAcceptMembership(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)

	rec := e.do(http.MethodPost, fmt.Sprintf("/tenants/%s/members", tenant.ID), ownerToken, uuid.Nil, map[string]interface{}{
		"email": "new@example.com",
		"role":  "USER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Invitee registers and accepts; email match binds the membership
	rec = e.do(http.MethodPost, "/auth/register", "", uuid.Nil, map[string]string{
		"email": "new@example.com", "password": "password123", "fullName": "New Member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(http.MethodPost, "/auth/login", "", uuid.Nil, map[string]string{
		"email": "new@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	newToken := decodeBody(t, rec)["accessToken"].(string)

	rec = e.do(http.MethodPost, "/memberships/accept", newToken, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decodeBody(t, rec)["accepted"].([]interface{})
	require.Len(t, accepted, 1)

	// Member can now reach tenant data
	rec = e.do(http.MethodGet, "/customers", newToken, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEventLogWrittenOnCaseLifecycle(t *testing.T) {
	e := newTestEnv(t)
	owner, token := e.seedUser("owner@example.com", "Owner")
	tenant := e.seedTenant("Acme Loans", owner, models.RoleOwner)
	customer, lt, stageA, stageB := seedCaseFixture(t, e, tenant, owner)

	rec := e.do(http.MethodPost, "/loan-cases", token, tenant.ID, map[string]interface{}{
		"customerId": customer.ID, "loanTypeId": lt.ID, "stageId": stageA.ID,
		"requestedAmount": 100000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	caseID := decodeBody(t, rec)["id"].(string)

	rec = e.do(http.MethodPut, "/loan-cases/"+caseID+"/stage", token, tenant.ID, map[string]interface{}{
		"newStageId": stageB.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/events?caseId="+caseID, token, tenant.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(2), body["total"])

	types := map[string]bool{}
	for _, ev := range body["events"].([]interface{}) {
		types[ev.(map[string]interface{})["type"].(string)] = true
	}
	require.True(t, types["CASE_CREATED"])
	require.True(t, types["STAGE_CHANGED"])
}
