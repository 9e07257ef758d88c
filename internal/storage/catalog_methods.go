package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// ========== Loan Type Methods ==========

// CreateLoanType creates a new loan type
func (s *PostgresStore) CreateLoanType(ctx context.Context, lt *models.LoanType) error {
	if lt.ID == uuid.Nil {
		lt.ID = uuid.New()
	}

	now := time.Now()
	lt.CreatedAt = now
	lt.UpdatedAt = now

	query := `
		INSERT INTO loan_types (
			id, created_at, updated_at, tenant_id, code, name, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		lt.ID, lt.CreatedAt, lt.UpdatedAt, lt.TenantID, lt.Code, lt.Name,
		lt.IsActive,
	)

	return translateError(err)
}

// GetLoanType gets a loan type by ID within a tenant
func (s *PostgresStore) GetLoanType(ctx context.Context, tenantID, id uuid.UUID) (*models.LoanType, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, code, name, is_active
		FROM loan_types
		WHERE tenant_id = $1 AND id = $2`

	return s.scanLoanType(s.getDB().QueryRowContext(ctx, query, tenantID, id))
}

// FindLoanTypeByName finds a loan type by case-insensitive exact name
func (s *PostgresStore) FindLoanTypeByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.LoanType, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, code, name, is_active
		FROM loan_types
		WHERE tenant_id = $1 AND lower(name) = lower($2)`

	return s.scanLoanType(s.getDB().QueryRowContext(ctx, query, tenantID, name))
}

func (s *PostgresStore) scanLoanType(row *sql.Row) (*models.LoanType, error) {
	lt := &models.LoanType{}
	err := row.Scan(
		&lt.ID, &lt.CreatedAt, &lt.UpdatedAt, &lt.TenantID, &lt.Code,
		&lt.Name, &lt.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return lt, err
}

// UpdateLoanType updates a loan type
func (s *PostgresStore) UpdateLoanType(ctx context.Context, lt *models.LoanType) error {
	lt.UpdatedAt = time.Now()

	query := `
		UPDATE loan_types SET
			updated_at = $3, code = $4, name = $5, is_active = $6
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		lt.TenantID, lt.ID, lt.UpdatedAt, lt.Code, lt.Name, lt.IsActive,
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

// DeleteLoanType deletes a loan type and its checklist mappings.
// Existing case snapshots are left untouched.
func (s *PostgresStore) DeleteLoanType(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pg := tx.(*PostgresStore)

	if _, err := pg.getDB().ExecContext(ctx,
		`DELETE FROM loan_type_documents WHERE tenant_id = $1 AND loan_type_id = $2`,
		tenantID, id); err != nil {
		return err
	}

	result, err := pg.getDB().ExecContext(ctx,
		`DELETE FROM loan_types WHERE tenant_id = $1 AND id = $2`, tenantID, id)
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

	return tx.Commit()
}

// ListLoanTypes lists loan types of a tenant
func (s *PostgresStore) ListLoanTypes(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.LoanType, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, code, name, is_active
		FROM loan_types
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND name ILIKE $2`
	}

	args = append(args, MaxListResults)
	query += ` ORDER BY name LIMIT $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*models.LoanType
	for rows.Next() {
		lt := &models.LoanType{}
		if err := rows.Scan(
			&lt.ID, &lt.CreatedAt, &lt.UpdatedAt, &lt.TenantID, &lt.Code,
			&lt.Name, &lt.IsActive,
		); err != nil {
			return nil, err
		}
		types = append(types, lt)
	}

	return types, rows.Err()
}

// ========== Document Checklist Methods ==========

// CreateChecklistItem creates a new checklist item
func (s *PostgresStore) CreateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	query := `
		INSERT INTO document_checklist_items (
			id, created_at, updated_at, tenant_id, name, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		item.ID, item.CreatedAt, item.UpdatedAt, item.TenantID, item.Name,
		item.IsActive,
	)

	return translateError(err)
}

// GetChecklistItem gets a checklist item by ID within a tenant
func (s *PostgresStore) GetChecklistItem(ctx context.Context, tenantID, id uuid.UUID) (*models.DocumentChecklistItem, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, is_active
		FROM document_checklist_items
		WHERE tenant_id = $1 AND id = $2`

	return s.scanChecklistItem(s.getDB().QueryRowContext(ctx, query, tenantID, id))
}

// FindChecklistItemByName finds a checklist item by case-insensitive exact name
func (s *PostgresStore) FindChecklistItemByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DocumentChecklistItem, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, is_active
		FROM document_checklist_items
		WHERE tenant_id = $1 AND lower(name) = lower($2)`

	return s.scanChecklistItem(s.getDB().QueryRowContext(ctx, query, tenantID, name))
}

func (s *PostgresStore) scanChecklistItem(row *sql.Row) (*models.DocumentChecklistItem, error) {
	item := &models.DocumentChecklistItem{}
	err := row.Scan(
		&item.ID, &item.CreatedAt, &item.UpdatedAt, &item.TenantID,
		&item.Name, &item.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return item, err
}

// UpdateChecklistItem updates a checklist item
func (s *PostgresStore) UpdateChecklistItem(ctx context.Context, item *models.DocumentChecklistItem) error {
	item.UpdatedAt = time.Now()

	query := `
		UPDATE document_checklist_items SET
			updated_at = $3, name = $4, is_active = $5
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		item.TenantID, item.ID, item.UpdatedAt, item.Name, item.IsActive,
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

// DeleteChecklistItem deletes a checklist item within a tenant
func (s *PostgresStore) DeleteChecklistItem(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		`DELETE FROM document_checklist_items WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
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

// ListChecklistItems lists checklist items of a tenant
func (s *PostgresStore) ListChecklistItems(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.DocumentChecklistItem, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, is_active
		FROM document_checklist_items
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND name ILIKE $2`
	}

	args = append(args, MaxListResults)
	query += ` ORDER BY name LIMIT $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.DocumentChecklistItem
	for rows.Next() {
		item := &models.DocumentChecklistItem{}
		if err := rows.Scan(
			&item.ID, &item.CreatedAt, &item.UpdatedAt, &item.TenantID,
			&item.Name, &item.IsActive,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ========== Pipeline Stage Methods ==========

// CreateStage creates a new pipeline stage
func (s *PostgresStore) CreateStage(ctx context.Context, st *models.PipelineStage) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	now := time.Now()
	st.CreatedAt = now
	st.UpdatedAt = now

	query := `
		INSERT INTO pipeline_stages (
			id, created_at, updated_at, tenant_id, name, description, sort_order
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		st.ID, st.CreatedAt, st.UpdatedAt, st.TenantID, st.Name,
		st.Description, st.SortOrder,
	)

	return translateError(err)
}

// GetStage gets a pipeline stage by ID within a tenant
func (s *PostgresStore) GetStage(ctx context.Context, tenantID, id uuid.UUID) (*models.PipelineStage, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, description, sort_order
		FROM pipeline_stages
		WHERE tenant_id = $1 AND id = $2`

	return s.scanStage(s.getDB().QueryRowContext(ctx, query, tenantID, id))
}

// FindStageByName finds a pipeline stage by case-insensitive exact name
func (s *PostgresStore) FindStageByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.PipelineStage, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, description, sort_order
		FROM pipeline_stages
		WHERE tenant_id = $1 AND lower(name) = lower($2)`

	return s.scanStage(s.getDB().QueryRowContext(ctx, query, tenantID, name))
}

func (s *PostgresStore) scanStage(row *sql.Row) (*models.PipelineStage, error) {
	st := &models.PipelineStage{}
	err := row.Scan(
		&st.ID, &st.CreatedAt, &st.UpdatedAt, &st.TenantID, &st.Name,
		&st.Description, &st.SortOrder,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return st, err
}

// UpdateStage updates a pipeline stage
func (s *PostgresStore) UpdateStage(ctx context.Context, st *models.PipelineStage) error {
	st.UpdatedAt = time.Now()

	query := `
		UPDATE pipeline_stages SET
			updated_at = $3, name = $4, description = $5, sort_order = $6
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		st.TenantID, st.ID, st.UpdatedAt, st.Name, st.Description, st.SortOrder,
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

// DeleteStage deletes a pipeline stage within a tenant. Cases pointing
// at the stage keep their stale stage id and surface as "Unassigned" on
// the dashboard.
func (s *PostgresStore) DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		`DELETE FROM pipeline_stages WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
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

// ListStages lists pipeline stages of a tenant ordered by
// (sort_order, created_at)
func (s *PostgresStore) ListStages(ctx context.Context, tenantID uuid.UUID, search string) ([]*models.PipelineStage, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, name, description, sort_order
		FROM pipeline_stages
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND (name ILIKE $2 OR description ILIKE $2)`
	}

	args = append(args, MaxListResults)
	query += ` ORDER BY sort_order, created_at LIMIT $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.PipelineStage
	for rows.Next() {
		st := &models.PipelineStage{}
		if err := rows.Scan(
			&st.ID, &st.CreatedAt, &st.UpdatedAt, &st.TenantID, &st.Name,
			&st.Description, &st.SortOrder,
		); err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}

	return stages, rows.Err()
}

// ========== Checklist Mapping Methods ==========

// ListLoanTypeDocuments lists the mapping set of a loan type
func (s *PostgresStore) ListLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID) ([]*models.LoanTypeDocument, error) {
	query := `
		SELECT id, created_at, updated_at, tenant_id, loan_type_id, document_id, status
		FROM loan_type_documents
		WHERE tenant_id = $1 AND loan_type_id = $2
		ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, loanTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.LoanTypeDocument
	for rows.Next() {
		d := &models.LoanTypeDocument{}
		if err := rows.Scan(
			&d.ID, &d.CreatedAt, &d.UpdatedAt, &d.TenantID, &d.LoanTypeID,
			&d.DocumentID, &d.Status,
		); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

// ReplaceLoanTypeDocuments replaces the whole mapping set of a loan
// type in one transaction: delete all rows, insert the submitted set.
func (s *PostgresStore) ReplaceLoanTypeDocuments(ctx context.Context, tenantID, loanTypeID uuid.UUID, docs []*models.LoanTypeDocument) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pg := tx.(*PostgresStore)

	if _, err := pg.getDB().ExecContext(ctx,
		`DELETE FROM loan_type_documents WHERE tenant_id = $1 AND loan_type_id = $2`,
		tenantID, loanTypeID); err != nil {
		return err
	}

	now := time.Now()
	for _, d := range docs {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.TenantID = tenantID
		d.LoanTypeID = loanTypeID
		d.CreatedAt = now
		d.UpdatedAt = now

		if _, err := pg.getDB().ExecContext(ctx, `
			INSERT INTO loan_type_documents (
				id, created_at, updated_at, tenant_id, loan_type_id, document_id, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.ID, d.CreatedAt, d.UpdatedAt, d.TenantID, d.LoanTypeID,
			d.DocumentID, d.Status,
		); err != nil {
			return translateError(err)
		}
	}

	return tx.Commit()
}
