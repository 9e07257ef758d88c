package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// MemoryStore implements Store in memory. It backs the handler and
// engine tests and mirrors the unique indexes the SQL schema enforces.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[uuid.UUID]*models.User
	tenants     map[uuid.UUID]*models.Tenant
	memberships map[uuid.UUID]*models.Membership
	customers   map[uuid.UUID]*models.Customer
	loanTypes   map[uuid.UUID]*models.LoanType
	checklist   map[uuid.UUID]*models.DocumentChecklistItem
	stages      map[uuid.UUID]*models.PipelineStage
	mappings    map[uuid.UUID]*models.LoanTypeDocument
	cases       map[uuid.UUID]*models.LoanCase
	events      []*models.EventLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*models.User),
		tenants:     make(map[uuid.UUID]*models.Tenant),
		memberships: make(map[uuid.UUID]*models.Membership),
		customers:   make(map[uuid.UUID]*models.Customer),
		loanTypes:   make(map[uuid.UUID]*models.LoanType),
		checklist:   make(map[uuid.UUID]*models.DocumentChecklistItem),
		stages:      make(map[uuid.UUID]*models.PipelineStage),
		mappings:    make(map[uuid.UUID]*models.LoanTypeDocument),
		cases:       make(map[uuid.UUID]*models.LoanCase),
	}
}

// BeginTx returns the store itself; memory operations are applied
// immediately and Commit/Rollback are no-ops.
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

func stamp(b *models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ========== User Methods ==========

// CreateUser creates a user, enforcing email uniqueness
func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if equalFold(u.Email, user.Email) {
			return ErrDuplicateKey
		}
	}

	stamp(&user.BaseModel)
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUser gets a user by ID
func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail gets a user by email, case-insensitively
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if equalFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser updates a user
func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// ========== Tenant Methods ==========

// CreateTenant creates a tenant
func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}
	stamp(&tenant.BaseModel)
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// GetTenant gets a tenant by ID
func (s *MemoryStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTenant updates a tenant
func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// ListTenantsForUser lists tenants where the user holds an active membership
func (s *MemoryStore) ListTenantsForUser(ctx context.Context, userID uuid.UUID, email string) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tenants []*models.Tenant
	for _, m := range s.memberships {
		if m.Status != models.MembershipActive {
			continue
		}
		if (m.UserID != nil && *m.UserID == userID) || equalFold(m.Email, email) {
			if t, ok := s.tenants[m.TenantID]; ok {
				cp := *t
				tenants = append(tenants, &cp)
			}
		}
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].CreatedAt.Before(tenants[j].CreatedAt)
	})
	return tenants, nil
}

// ========== Membership Methods ==========

// CreateMembership creates a membership, enforcing (tenant, user)
// uniqueness once the user id is set
func (s *MemoryStore) CreateMembership(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.UserID != nil {
		for _, existing := range s.memberships {
			if existing.TenantID == m.TenantID && existing.UserID != nil && *existing.UserID == *m.UserID {
				return ErrDuplicateKey
			}
		}
	}

	stamp(&m.BaseModel)
	cp := *m
	s.memberships[m.ID] = &cp
	return nil
}

// GetMembership gets a membership by ID
func (s *MemoryStore) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// UpdateMembership updates a membership
func (s *MemoryStore) UpdateMembership(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now()
	cp := *m
	s.memberships[m.ID] = &cp
	return nil
}

// ListMemberships lists memberships of a tenant
func (s *MemoryStore) ListMemberships(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*models.Membership
	for _, m := range s.memberships {
		if m.TenantID == tenantID {
			cp := *m
			members = append(members, &cp)
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// FindActiveMembership resolves an active membership by user id or email
func (s *MemoryStore) FindActiveMembership(ctx context.Context, tenantID, userID uuid.UUID, email string) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.TenantID != tenantID || m.Status != models.MembershipActive {
			continue
		}
		if (m.UserID != nil && *m.UserID == userID) || (email != "" && equalFold(m.Email, email)) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// FindInvitedMembershipsByEmail lists pending invitations for an email
func (s *MemoryStore) FindInvitedMembershipsByEmail(ctx context.Context, email string) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*models.Membership
	for _, m := range s.memberships {
		if m.Status == models.MembershipInvited && equalFold(m.Email, email) {
			cp := *m
			members = append(members, &cp)
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// ========== Customer Methods ==========

// CreateCustomer creates a customer, enforcing per-tenant mobile uniqueness
func (s *MemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if existing.TenantID == c.TenantID && existing.Mobile == c.Mobile {
			return ErrDuplicateKey
		}
	}

	stamp(&c.BaseModel)
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

// GetCustomer gets a customer by ID within a tenant
func (s *MemoryStore) GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// UpdateCustomer updates a customer
func (s *MemoryStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return ErrNotFound
	}
	for _, other := range s.customers {
		if other.ID != c.ID && other.TenantID == c.TenantID && other.Mobile == c.Mobile {
			return ErrDuplicateKey
		}
	}

	c.UpdatedAt = time.Now()
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

// DeleteCustomer deletes a customer within a tenant
func (s *MemoryStore) DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

// ListCustomers lists customers of a tenant
func (s *MemoryStore) ListCustomers(ctx context.Context, f CustomerFilters) ([]*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	var customers []*models.Customer
	for _, c := range s.customers {
		if c.TenantID != f.TenantID {
			continue
		}
		if f.CreatedBy != nil && c.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.Search != "" && !containsFold(c.FullName, f.Search) && !strings.Contains(c.Mobile, f.Search) {
			continue
		}
		cp := *c
		customers = append(customers, &cp)
	}

	sort.Slice(customers, func(i, j int) bool {
		return customers[i].UpdatedAt.After(customers[j].UpdatedAt)
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

// ========== Loan Type Methods ==========

// CreateLoanType creates a loan type, enforcing case-insensitive name
// uniqueness per tenant
func (s *MemoryStore) CreateLoanType(ctx context.Context, lt *models.LoanType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.loanTypes {
		if existing.TenantID == lt.TenantID && equalFold(existing.Name, lt.Name) {
			return ErrDuplicateKey
		}
	}

	stamp(&lt.BaseModel)
	cp := *lt
	s.loanTypes[lt.ID] = &cp
	return nil
}

// GetLoanType gets a loan type by ID within a tenant
func (s *MemoryStore) GetLoanType(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lt, ok := s.loanTypes[id]
	if !ok || lt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *lt
	return &cp, nil
}

// FindLoanTypeByName finds a loan type by case-insensitive exact name
func (s *MemoryStore) FindLoanTypeByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.LoanType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lt := range s.loanTypes {
		if lt.TenantID == tenantID && equalFold(lt.Name, name) {
			cp := *lt
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateLoanType updates a loan type
func (s *MemoryStore) UpdateLoanType(ctx context.Context, lt *models.LoanType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.loanTypes[lt.ID]
	if !ok || existing.TenantID != lt.TenantID {
		return ErrNotFound
	}
	for _, other := range s.loanTypes {
		if other.ID != lt.ID && other.TenantID == lt.TenantID && equalFold(other.Name, lt.Name) {
			return ErrDuplicateKey
		}
	}

	lt.UpdatedAt = time.Now()
	cp := *lt
	s.loanTypes[lt.ID] = &cp
	return nil
}

// DeleteLoanType deletes a loan type and its checklist mappings
func (s *MemoryStore) DeleteLoanType(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, ok := s.loanTypes[id]
	if !ok || lt.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.loanTypes, id)
	for mid, m := range s.mappings {
		if m.TenantID == tenantID && m.LoanTypeID == id {
			delete(s.mappings, mid)
		}
	}
	return nil
}

// ListLoanTypes lists loan types of a tenant
func (s *MemoryStore) ListLoanTypes(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.LoanType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var types []*models.LoanType
	for _, lt := range s.loanTypes {
		if lt.TenantID != tenantID {
			continue
		}
		if search != "" && !containsFold(lt.Name, search) {
			continue
		}
		cp := *lt
		types = append(types, &cp)
	}

	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	if len(types) > MaxListResults {
		types = types[:MaxListResults]
	}
	return types, nil
}

// ========== Document Checklist Methods ==========

// CreateChecklistItem creates a checklist item, enforcing
// case-insensitive name uniqueness per tenant
func (s *MemoryStore) CreateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.checklist {
		if existing.TenantID == item.TenantID && equalFold(existing.Name, item.Name) {
			return ErrDuplicateKey
		}
	}

	stamp(&item.BaseModel)
	cp := *item
	s.checklist[item.ID] = &cp
	return nil
}

// GetChecklistItem gets a checklist item by ID within a tenant
func (s *MemoryStore) GetChecklistItem(ctx context.Context, tenantID, id uuid.UUID) (*models.DocumentChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.checklist[id]
	if !ok || item.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// FindChecklistItemByName finds a checklist item by case-insensitive exact name
func (s *MemoryStore) FindChecklistItemByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DocumentChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.checklist {
		if item.TenantID == tenantID && equalFold(item.Name, name) {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateChecklistItem updates a checklist item
func (s *MemoryStore) UpdateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.checklist[item.ID]
	if !ok || existing.TenantID != item.TenantID {
		return ErrNotFound
	}
	for _, other := range s.checklist {
		if other.ID != item.ID && other.TenantID == item.TenantID && equalFold(other.Name, item.Name) {
			return ErrDuplicateKey
		}
	}

	item.UpdatedAt = time.Now()
	cp := *item
	s.checklist[item.ID] = &cp
	return nil
}

// DeleteChecklistItem deletes a checklist item within a tenant
func (s *MemoryStore) DeleteChecklistItem(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.checklist[id]
	if !ok || item.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.checklist, id)
	return nil
}

// ListChecklistItems lists checklist items of a tenant
func (s *MemoryStore) ListChecklistItems(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.DocumentChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*models.DocumentChecklistItem
	for _, item := range s.checklist {
		if item.TenantID != tenantID {
			continue
		}
		if search != "" && !containsFold(item.Name, search) {
			continue
		}
		cp := *item
		items = append(items, &cp)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	if len(items) > MaxListResults {
		items = items[:MaxListResults]
	}
	return items, nil
}

// ========== Pipeline Stage Methods ==========

// CreateStage creates a pipeline stage, enforcing case-insensitive name
// uniqueness per tenant
func (s *MemoryStore) CreateStage(ctx context.Context, st *models.PipelineStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.stages {
		if existing.TenantID == st.TenantID && equalFold(existing.Name, st.Name) {
			return ErrDuplicateKey
		}
	}

	stamp(&st.BaseModel)
	cp := *st
	s.stages[st.ID] = &cp
	return nil
}

// GetStage gets a pipeline stage by ID within a tenant
func (s *MemoryStore) GetStage(ctx context.Context, tenantID, id uuid.UUID) (*models.PipelineStage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stages[id]
	if !ok || st.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// FindStageByName finds a pipeline stage by case-insensitive exact name
func (s *MemoryStore) FindStageByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.PipelineStage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.stages {
		if st.TenantID == tenantID && equalFold(st.Name, name) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateStage updates a pipeline stage
func (s *MemoryStore) UpdateStage(ctx context.Context, st *models.PipelineStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stages[st.ID]
	if !ok || existing.TenantID != st.TenantID {
		return ErrNotFound
	}
	for _, other := range s.stages {
		if other.ID != st.ID && other.TenantID == st.TenantID && equalFold(other.Name, st.Name) {
			return ErrDuplicateKey
		}
	}

	st.UpdatedAt = time.Now()
	cp := *st
	s.stages[st.ID] = &cp
	return nil
}

// DeleteStage deletes a pipeline stage within a tenant
func (s *MemoryStore) DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[id]
	if !ok || st.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.stages, id)
	return nil
}

// ListStages lists pipeline stages ordered by (sort_order, created_at)
func (s *MemoryStore) ListStages(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.PipelineStage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stages []*models.PipelineStage
	for _, st := range s.stages {
		if st.TenantID != tenantID {
			continue
		}
		if search != "" && !containsFold(st.Name, search) && !containsFold(st.Description, search) {
			continue
		}
		cp := *st
		stages = append(stages, &cp)
	}

	sort.Slice(stages, func(i, j int) bool {
		if stages[i].SortOrder != stages[j].SortOrder {
			return stages[i].SortOrder < stages[j].SortOrder
		}
		return stages[i].CreatedAt.Before(stages[j].CreatedAt)
	})
	if len(stages) > MaxListResults {
		stages = stages[:MaxListResults]
	}
	return stages, nil
}

// ========== Checklist Mapping Methods ==========

// ListLoanTypeDocuments lists the mapping set of a loan type
func (s *MemoryStore) ListLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID) ([]*models.LoanTypeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*models.LoanTypeDocument
	for _, d := range s.mappings {
		if d.TenantID == tenantID && d.LoanTypeID == loanTypeID {
			cp := *d
			docs = append(docs, &cp)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// ReplaceLoanTypeDocuments replaces the whole mapping set of a loan type
func (s *MemoryStore) ReplaceLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID, docs []*models.LoanTypeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, d := range s.mappings {
		if d.TenantID == tenantID && d.LoanTypeID == loanTypeID {
			delete(s.mappings, id)
		}
	}

	for _, d := range docs {
		d.TenantID = tenantID
		d.LoanTypeID = loanTypeID
		stamp(&d.BaseModel)
		cp := *d
		s.mappings[d.ID] = &cp
	}
	return nil
}

// ========== Loan Case Methods ==========

// CreateCase creates a loan case
func (s *MemoryStore) CreateCase(ctx context.Context, c *models.LoanCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&c.BaseModel)
	cp := *c
	cp.Documents = append(models.CaseDocuments{}, c.Documents...)
	s.cases[c.ID] = &cp
	return nil
}

// GetCase gets a loan case by ID within a tenant
func (s *MemoryStore) GetCase(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Documents = append(models.CaseDocuments{}, c.Documents...)
	return &cp, nil
}

// UpdateCase updates a loan case
func (s *MemoryStore) UpdateCase(ctx context.Context, c *models.LoanCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cases[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return ErrNotFound
	}

	c.UpdatedAt = time.Now()
	cp := *c
	cp.Documents = append(models.CaseDocuments{}, c.Documents...)
	s.cases[c.ID] = &cp
	return nil
}

// UpdateCaseStage moves a case to a stage
func (s *MemoryStore) UpdateCaseStage(ctx context.Context, tenantID, id, stageID uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok || c.TenantID != tenantID {
		return time.Time{}, ErrNotFound
	}

	c.StageID = stageID
	c.UpdatedAt = time.Now()
	return c.UpdatedAt, nil
}

// ListCases lists loan cases sorted by updated_at desc
func (s *MemoryStore) ListCases(ctx context.Context, f CaseFilters) ([]*models.LoanCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	var cases []*models.LoanCase
	for _, c := range s.cases {
		if c.TenantID != f.TenantID {
			continue
		}
		if f.StageID != nil && c.StageID != *f.StageID {
			continue
		}
		if f.AssignedAgentID != nil && (c.AssignedAgentID == nil || *c.AssignedAgentID != *f.AssignedAgentID) {
			continue
		}
		if f.CustomerID != nil && c.CustomerID != *f.CustomerID {
			continue
		}
		if f.ViewerID != nil {
			created := c.CreatedBy == *f.ViewerID
			assigned := c.AssignedAgentID != nil && *c.AssignedAgentID == *f.ViewerID
			if !created && !assigned {
				continue
			}
		}
		cp := *c
		cp.Documents = append(models.CaseDocuments{}, c.Documents...)
		cases = append(cases, &cp)
	}

	sort.Slice(cases, func(i, j int) bool {
		return cases[i].UpdatedAt.After(cases[j].UpdatedAt)
	})
	if len(cases) > limit {
		cases = cases[:limit]
	}
	return cases, nil
}

// ========== Dashboard Methods ==========

// CountCustomers counts customers of a tenant
func (s *MemoryStore) CountCustomers(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, c := range s.customers {
		if c.TenantID != tenantID {
			continue
		}
		if createdBy != nil && c.CreatedBy != *createdBy {
			continue
		}
		count++
	}
	return count, nil
}

// CountCases counts loan cases of a tenant
func (s *MemoryStore) CountCases(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, c := range s.cases {
		if c.TenantID != tenantID {
			continue
		}
		if viewerID != nil {
			created := c.CreatedBy == *viewerID
			assigned := c.AssignedAgentID != nil && *c.AssignedAgentID == *viewerID
			if !created && !assigned {
				continue
			}
		}
		count++
	}
	return count, nil
}

// truncateWeek truncates a time to the start of its ISO week (Monday)
func truncateWeek(t time.Time) time.Time {
	t = t.UTC()
	weekday := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -weekday)
}

func trendFrom(times []time.Time, since time.Time) []TrendBucket {
	byWeek := make(map[time.Time]int64)
	for _, t := range times {
		if t.Before(since) {
			continue
		}
		byWeek[truncateWeek(t)]++
	}

	var buckets []TrendBucket
	for week, count := range byWeek {
		buckets = append(buckets, TrendBucket{WeekStart: week, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WeekStart.Before(buckets[j].WeekStart)
	})
	return buckets
}

// CustomerTrend buckets customer creations per week
func (s *MemoryStore) CustomerTrend(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID, since time.Time) ([]TrendBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var times []time.Time
	for _, c := range s.customers {
		if c.TenantID != tenantID {
			continue
		}
		if createdBy != nil && c.CreatedBy != *createdBy {
			continue
		}
		times = append(times, c.CreatedAt)
	}
	return trendFrom(times, since), nil
}

// CaseTrend buckets case creations per week
func (s *MemoryStore) CaseTrend(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID, since time.Time) ([]TrendBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var times []time.Time
	for _, c := range s.cases {
		if c.TenantID != tenantID {
			continue
		}
		if viewerID != nil {
			created := c.CreatedBy == *viewerID
			assigned := c.AssignedAgentID != nil && *c.AssignedAgentID == *viewerID
			if !created && !assigned {
				continue
			}
		}
		times = append(times, c.CreatedAt)
	}
	return trendFrom(times, since), nil
}

// StageBreakdown counts cases per current stage
func (s *MemoryStore) StageBreakdown(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) ([]StageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStage := make(map[uuid.UUID]int64)
	for _, c := range s.cases {
		if c.TenantID != tenantID {
			continue
		}
		if viewerID != nil {
			created := c.CreatedBy == *viewerID
			assigned := c.AssignedAgentID != nil && *c.AssignedAgentID == *viewerID
			if !created && !assigned {
				continue
			}
		}
		byStage[c.StageID]++
	}

	var counts []StageCount
	var unassigned int64
	for stageID, count := range byStage {
		st, ok := s.stages[stageID]
		if !ok || st.TenantID != tenantID {
			unassigned += count
			continue
		}
		id := stageID
		counts = append(counts, StageCount{StageID: &id, StageName: st.Name, Count: count})
	}

	sort.Slice(counts, func(i, j int) bool {
		si := s.stages[*counts[i].StageID]
		sj := s.stages[*counts[j].StageID]
		if si.SortOrder != sj.SortOrder {
			return si.SortOrder < sj.SortOrder
		}
		return si.Name < sj.Name
	})
	if unassigned > 0 {
		counts = append(counts, StageCount{Count: unassigned})
	}
	return counts, nil
}

// AgentLeaderboard returns the top agents by assigned case count
func (s *MemoryStore) AgentLeaderboard(ctx context.Context, tenantID uuid.UUID, limit int) ([]AgentCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 6
	}

	byAgent := make(map[uuid.UUID]int64)
	for _, c := range s.cases {
		if c.TenantID == tenantID && c.AssignedAgentID != nil {
			byAgent[*c.AssignedAgentID]++
		}
	}

	var agents []AgentCount
	for id, count := range byAgent {
		agents = append(agents, AgentCount{AgentID: id, Count: count})
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Count != agents[j].Count {
			return agents[i].Count > agents[j].Count
		}
		return agents[i].AgentID.String() < agents[j].AgentID.String()
	})
	if len(agents) > limit {
		agents = agents[:limit]
	}
	return agents, nil
}

// ========== Event Log Methods ==========

// CreateEventLog appends an event log entry
func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// ListEventLogs lists event log entries with filters
func (s *MemoryStore) ListEventLogs(ctx context.Context, f EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	var matched []*models.EventLog
	for _, e := range s.events {
		if f.TenantID != nil && (e.TenantID == nil || *e.TenantID != *f.TenantID) {
			continue
		}
		if f.CaseID != nil && (e.CaseID == nil || *e.CaseID != *f.CaseID) {
			continue
		}
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		if f.Level != nil && e.Level != *f.Level {
			continue
		}
		if f.StartTime != nil && e.CreatedAt.Before(*f.StartTime) {
			continue
		}
		if f.EndTime != nil && e.CreatedAt.After(*f.EndTime) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}
