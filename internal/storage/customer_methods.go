package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// ========== Customer Methods ==========

// CreateCustomer creates a new customer
func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO customers (
			id, created_at, updated_at, tenant_id, full_name, mobile, email,
			pan, aadhaar_masked, employment_type, monthly_income, cibil_score,
			source, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		c.ID, c.CreatedAt, c.UpdatedAt, c.TenantID, c.FullName, c.Mobile,
		c.Email, c.PAN, c.AadhaarMasked, c.EmploymentType, c.MonthlyIncome,
		c.CIBILScore, c.Source, c.CreatedBy,
	)

	return translateError(err)
}

// GetCustomer gets a customer by ID within a tenant
func (s *PostgresStore) GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, full_name, mobile, email,
		       pan, aadhaar_masked, employment_type, monthly_income, cibil_score,
		       source, created_by
		FROM customers
		WHERE tenant_id = $1 AND id = $2`

	c := &models.Customer{}
	err := s.getDB().QueryRowContext(ctx, query, tenantID, id).Scan(
		&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.FullName, &c.Mobile,
		&c.Email, &c.PAN, &c.AadhaarMasked, &c.EmploymentType, &c.MonthlyIncome,
		&c.CIBILScore, &c.Source, &c.CreatedBy,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return c, err
}

// UpdateCustomer updates a customer
func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	c.UpdatedAt = time.Now()

	query := `
		UPDATE customers SET
			updated_at = $3, full_name = $4, mobile = $5, email = $6, pan = $7,
			aadhaar_masked = $8, employment_type = $9, monthly_income = $10,
			cibil_score = $11, source = $12
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		c.TenantID, c.ID, c.UpdatedAt, c.FullName, c.Mobile, c.Email, c.PAN,
		c.AadhaarMasked, c.EmploymentType, c.MonthlyIncome, c.CIBILScore,
		c.Source,
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

// DeleteCustomer deletes a customer within a tenant
func (s *PostgresStore) DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		`DELETE FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
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

// ListCustomers lists customers of a tenant
func (s *PostgresStore) ListCustomers(ctx context.Context, f CustomerFilters) ([]*models.Customer, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	query := `
		SELECT id, created_at, updated_at, tenant_id, full_name, mobile, email,
		       pan, aadhaar_masked, employment_type, monthly_income, cibil_score,
		       source, created_by
		FROM customers
		WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}

	if f.CreatedBy != nil {
		args = append(args, *f.CreatedBy)
		query += ` AND created_by = $2`
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += ` AND (full_name ILIKE $` + itoa(len(args)) + ` OR mobile ILIKE $` + itoa(len(args)) + `)`
	}

	args = append(args, limit)
	query += ` ORDER BY updated_at DESC LIMIT $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c := &models.Customer{}
		if err := rows.Scan(
			&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.FullName,
			&c.Mobile, &c.Email, &c.PAN, &c.AadhaarMasked, &c.EmploymentType,
			&c.MonthlyIncome, &c.CIBILScore, &c.Source, &c.CreatedBy,
		); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}

	return customers, rows.Err()
}
