package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// ========== Loan Case Methods ==========

// CreateCase creates a new loan case
func (s *PostgresStore) CreateCase(ctx context.Context, c *models.LoanCase) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO loan_cases (
			id, created_at, updated_at, tenant_id, customer_id, loan_type_id,
			stage_id, bank_name, requested_amount, eligible_amount,
			interest_rate, tenure_months, emi, assigned_agent_id, documents,
			is_locked, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		c.ID, c.CreatedAt, c.UpdatedAt, c.TenantID, c.CustomerID,
		c.LoanTypeID, c.StageID, c.BankName, c.RequestedAmount,
		c.EligibleAmount, c.InterestRate, c.TenureMonths, c.EMI,
		c.AssignedAgentID, c.Documents, c.IsLocked, c.CreatedBy,
	)

	return translateError(err)
}

// GetCase gets a loan case by ID within a tenant
func (s *PostgresStore) GetCase(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanCase, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, customer_id, loan_type_id,
		       stage_id, bank_name, requested_amount, eligible_amount,
		       interest_rate, tenure_months, emi, assigned_agent_id, documents,
		       is_locked, created_by
		FROM loan_cases
		WHERE tenant_id = $1 AND id = $2`

	c := &models.LoanCase{}
	err := s.getDB().QueryRowContext(ctx, query, tenantID, id).Scan(
		&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.CustomerID,
		&c.LoanTypeID, &c.StageID, &c.BankName, &c.RequestedAmount,
		&c.EligibleAmount, &c.InterestRate, &c.TenureMonths, &c.EMI,
		&c.AssignedAgentID, &c.Documents, &c.IsLocked, &c.CreatedBy,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return c, err
}

// UpdateCase updates a loan case. CustomerID and LoanTypeID are never
// part of the update statement; immutability is enforced above this
// layer and backed up here.
func (s *PostgresStore) UpdateCase(ctx context.Context, c *models.LoanCase) error {
	c.UpdatedAt = time.Now()

	query := `
		UPDATE loan_cases SET
			updated_at = $3, stage_id = $4, bank_name = $5,
			requested_amount = $6, eligible_amount = $7, interest_rate = $8,
			tenure_months = $9, emi = $10, assigned_agent_id = $11,
			documents = $12, is_locked = $13
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		c.TenantID, c.ID, c.UpdatedAt, c.StageID, c.BankName,
		c.RequestedAmount, c.EligibleAmount, c.InterestRate, c.TenureMonths,
		c.EMI, c.AssignedAgentID, c.Documents, c.IsLocked,
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

// UpdateCaseStage moves a case to a stage, touching only stage_id and
// updated_at
func (s *PostgresStore) UpdateCaseStage(ctx context.Context, tenantID, id, stageID uuid.UUID) (time.Time, error) {
	now := time.Now()

	result, err := s.getDB().ExecContext(ctx, `
		UPDATE loan_cases SET stage_id = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, stageID, now,
	)
	if err != nil {
		return time.Time{}, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, err
	}
	if rows == 0 {
		return time.Time{}, ErrNotFound
	}

	return now, nil
}

// ListCases lists loan cases of a tenant sorted by updated_at desc
func (s *PostgresStore) ListCases(ctx context.Context, f CaseFilters) ([]*models.LoanCase, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	query := `
		SELECT id, created_at, updated_at, tenant_id, customer_id, loan_type_id,
		       stage_id, bank_name, requested_amount, eligible_amount,
		       interest_rate, tenure_months, emi, assigned_agent_id, documents,
		       is_locked, created_by
		FROM loan_cases
		WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}

	if f.StageID != nil {
		args = append(args, *f.StageID)
		query += ` AND stage_id = $` + itoa(len(args))
	}
	if f.AssignedAgentID != nil {
		args = append(args, *f.AssignedAgentID)
		query += ` AND assigned_agent_id = $` + itoa(len(args))
	}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		query += ` AND customer_id = $` + itoa(len(args))
	}
	if f.ViewerID != nil {
		args = append(args, *f.ViewerID)
		n := itoa(len(args))
		query += ` AND (created_by = $` + n + ` OR assigned_agent_id = $` + n + `)`
	}

	args = append(args, limit)
	query += ` ORDER BY updated_at DESC LIMIT $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*models.LoanCase
	for rows.Next() {
		c := &models.LoanCase{}
		if err := rows.Scan(
			&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.CustomerID,
			&c.LoanTypeID, &c.StageID, &c.BankName, &c.RequestedAmount,
			&c.EligibleAmount, &c.InterestRate, &c.TenureMonths, &c.EMI,
			&c.AssignedAgentID, &c.Documents, &c.IsLocked, &c.CreatedBy,
		); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	return cases, rows.Err()
}
