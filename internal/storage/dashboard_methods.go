package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ========== Dashboard Methods ==========

// CountCustomers counts customers of a tenant, optionally scoped to a
// single creator
func (s *PostgresStore) CountCustomers(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM customers WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if createdBy != nil {
		args = append(args, *createdBy)
		query += ` AND created_by = $2`
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// CountCases counts loan cases of a tenant, optionally scoped to cases
// the viewer created or is assigned to
func (s *PostgresStore) CountCases(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM loan_cases WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if viewerID != nil {
		args = append(args, *viewerID)
		query += ` AND (created_by = $2 OR assigned_agent_id = $2)`
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// CustomerTrend buckets customer creations per week since the given time
func (s *PostgresStore) CustomerTrend(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID, since time.Time) ([]TrendBucket, error) {
	query := `
		SELECT date_trunc('week', created_at) AS week_start, COUNT(*)
		FROM customers
		WHERE tenant_id = $1 AND created_at >= $2`
	args := []interface{}{tenantID, since}

	if createdBy != nil {
		args = append(args, *createdBy)
		query += ` AND created_by = $3`
	}

	query += ` GROUP BY week_start ORDER BY week_start`

	return s.queryTrend(ctx, query, args...)
}

// CaseTrend buckets case creations per week since the given time
func (s *PostgresStore) CaseTrend(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID, since time.Time) ([]TrendBucket, error) {
	query := `
		SELECT date_trunc('week', created_at) AS week_start, COUNT(*)
		FROM loan_cases
		WHERE tenant_id = $1 AND created_at >= $2`
	args := []interface{}{tenantID, since}

	if viewerID != nil {
		args = append(args, *viewerID)
		query += ` AND (created_by = $3 OR assigned_agent_id = $3)`
	}

	query += ` GROUP BY week_start ORDER BY week_start`

	return s.queryTrend(ctx, query, args...)
}

func (s *PostgresStore) queryTrend(ctx context.Context, query string, args ...interface{}) ([]TrendBucket, error) {
	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []TrendBucket
	for rows.Next() {
		var b TrendBucket
		if err := rows.Scan(&b.WeekStart, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

// StageBreakdown counts cases per current stage. Cases whose stage has
// been deleted come back with a NULL stage name and are folded into the
// "Unassigned" bucket by the caller.
func (s *PostgresStore) StageBreakdown(ctx context.Context, tenantID uuid.UUID, viewerID *uuid.UUID) ([]StageCount, error) {
	query := `
		SELECT c.stage_id, ps.name, ps.sort_order, COUNT(*)
		FROM loan_cases c
		LEFT JOIN pipeline_stages ps ON ps.tenant_id = c.tenant_id AND ps.id = c.stage_id
		WHERE c.tenant_id = $1`
	args := []interface{}{tenantID}

	if viewerID != nil {
		args = append(args, *viewerID)
		query += ` AND (c.created_by = $2 OR c.assigned_agent_id = $2)`
	}

	query += ` GROUP BY c.stage_id, ps.name, ps.sort_order
		ORDER BY ps.sort_order NULLS LAST, ps.name`

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StageCount
	for rows.Next() {
		var (
			sc        StageCount
			stageID   uuid.UUID
			stageName *string
			sortOrder *int
		)
		if err := rows.Scan(&stageID, &stageName, &sortOrder, &sc.Count); err != nil {
			return nil, err
		}
		if stageName != nil {
			id := stageID
			sc.StageID = &id
			sc.StageName = *stageName
		}
		counts = append(counts, sc)
	}

	return counts, rows.Err()
}

// AgentLeaderboard returns the top agents by assigned case count
func (s *PostgresStore) AgentLeaderboard(ctx context.Context, tenantID uuid.UUID, limit int) ([]AgentCount, error) {
	if limit <= 0 {
		limit = 6
	}

	query := `
		SELECT assigned_agent_id, COUNT(*) AS cnt
		FROM loan_cases
		WHERE tenant_id = $1 AND assigned_agent_id IS NOT NULL
		GROUP BY assigned_agent_id
		ORDER BY cnt DESC
		LIMIT $2`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []AgentCount
	for rows.Next() {
		var a AgentCount
		if err := rows.Scan(&a.AgentID, &a.Count); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}

	return agents, rows.Err()
}
