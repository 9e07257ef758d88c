package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// ========== User Methods ==========

// CreateUser creates a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, created_at, updated_at, email, full_name,
			password_hash, is_super_admin, is_active, last_login_at, settings
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email, user.FullName,
		user.PasswordHash, user.IsSuperAdmin, user.IsActive, user.LastLoginAt,
		user.Settings,
	)

	return translateError(err)
}

// GetUser gets a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, created_at, updated_at, email, full_name,
		       password_hash, is_super_admin, is_active, last_login_at, settings
		FROM users
		WHERE id = $1`

	return s.scanUser(s.getDB().QueryRowContext(ctx, query, id))
}

// GetUserByEmail gets a user by email, case-insensitively
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, created_at, updated_at, email, full_name,
		       password_hash, is_super_admin, is_active, last_login_at, settings
		FROM users
		WHERE lower(email) = lower($1)`

	return s.scanUser(s.getDB().QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.FullName,
		&user.PasswordHash, &user.IsSuperAdmin, &user.IsActive, &user.LastLoginAt,
		&user.Settings,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return user, err
}

// UpdateUser updates a user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET
			updated_at = $2, email = $3, full_name = $4, password_hash = $5,
			is_super_admin = $6, is_active = $7, last_login_at = $8, settings = $9
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.UpdatedAt, user.Email, user.FullName, user.PasswordHash,
		user.IsSuperAdmin, user.IsActive, user.LastLoginAt, user.Settings,
	)
	if err != nil {
		return translateError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ========== Tenant Methods ==========

// CreateTenant creates a new tenant
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}

	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	query := `
		INSERT INTO tenants (
			id, created_at, updated_at, name, type, status,
			created_by, subscription_plan_id, theme
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.Name,
		tenant.Type, tenant.Status, tenant.CreatedBy,
		tenant.SubscriptionPlanID, tenant.Theme,
	)

	return translateError(err)
}

// GetTenant gets a tenant by ID
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT id, created_at, updated_at, name, type, status,
		       created_by, subscription_plan_id, theme
		FROM tenants
		WHERE id = $1`

	tenant := &models.Tenant{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
		&tenant.Type, &tenant.Status, &tenant.CreatedBy,
		&tenant.SubscriptionPlanID, &tenant.Theme,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return tenant, err
}

// UpdateTenant updates a tenant
func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
		UPDATE tenants SET
			updated_at = $2, name = $3, type = $4, status = $5,
			subscription_plan_id = $6, theme = $7
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.UpdatedAt, tenant.Name, tenant.Type, tenant.Status,
		tenant.SubscriptionPlanID, tenant.Theme,
	)
	if err != nil {
		return translateError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListTenantsForUser lists tenants where the user holds an active
// membership, matched by user id or email
func (s *PostgresStore) ListTenantsForUser(ctx context.Context, userID uuid.UUID, email string) ([]*models.Tenant, error) {
	query := `
		SELECT t.id, t.created_at, t.updated_at, t.name, t.type, t.status,
		       t.created_by, t.subscription_plan_id, t.theme
		FROM tenants t
		JOIN memberships m ON m.tenant_id = t.id
		WHERE m.status = 'active'
		  AND (m.user_id = $1 OR lower(m.email) = lower($2))
		ORDER BY t.created_at`

	rows, err := s.getDB().QueryContext(ctx, query, userID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant := &models.Tenant{}
		if err := rows.Scan(
			&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
			&tenant.Type, &tenant.Status, &tenant.CreatedBy,
			&tenant.SubscriptionPlanID, &tenant.Theme,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// ========== Membership Methods ==========

// CreateMembership creates a membership
func (s *PostgresStore) CreateMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `
		INSERT INTO memberships (
			id, created_at, updated_at, tenant_id, user_id, email, role, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		m.ID, m.CreatedAt, m.UpdatedAt, m.TenantID, m.UserID, m.Email,
		m.Role, m.Status,
	)

	return translateError(err)
}

// GetMembership gets a membership by ID
func (s *PostgresStore) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, user_id, email, role, status
		FROM memberships
		WHERE id = $1`

	m := &models.Membership{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.TenantID, &m.UserID,
		&m.Email, &m.Role, &m.Status,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return m, err
}

// UpdateMembership updates a membership
func (s *PostgresStore) UpdateMembership(ctx context.Context, m *models.Membership) error {
	m.UpdatedAt = time.Now()

	query := `
		UPDATE memberships SET
			updated_at = $2, user_id = $3, email = $4, role = $5, status = $6
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		m.ID, m.UpdatedAt, m.UserID, m.Email, m.Role, m.Status,
	)
	if err != nil {
		return translateError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListMemberships lists memberships of a tenant
func (s *PostgresStore) ListMemberships(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, user_id, email, role, status
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(
			&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.TenantID, &m.UserID,
			&m.Email, &m.Role, &m.Status,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// FindActiveMembership resolves the caller's active membership in a
// tenant. Email matching covers accounts invited by email before their
// first login.
func (s *PostgresStore) FindActiveMembership(ctx context.Context, tenantID, userID uuid.UUID, email string) (*models.Membership, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, user_id, email, role, status
		FROM memberships
		WHERE tenant_id = $1
		  AND status = 'active'
		  AND (user_id = $2 OR lower(email) = lower($3))
		LIMIT 1`

	m := &models.Membership{}
	err := s.getDB().QueryRowContext(ctx, query, tenantID, userID, email).Scan(
		&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.TenantID, &m.UserID,
		&m.Email, &m.Role, &m.Status,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return m, err
}

// FindInvitedMembershipsByEmail lists pending invitations for an email
func (s *PostgresStore) FindInvitedMembershipsByEmail(ctx context.Context, email string) ([]*models.Membership, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, user_id, email, role, status
		FROM memberships
		WHERE status = 'invited' AND lower(email) = lower($1)
		ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(
			&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.TenantID, &m.UserID,
			&m.Email, &m.Role, &m.Status,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}
