package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// ========== Event Log Methods ==========

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO event_logs (
			id, created_at, tenant_id, case_id, actor_id, type, level,
			description, details
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.TenantID, event.CaseID,
		event.ActorID, event.Type, event.Level, event.Description,
		event.Details,
	)

	return err
}

// ListEventLogs lists event log entries with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, f EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}

	where := ` WHERE 1=1`
	var args []interface{}

	if f.TenantID != nil {
		args = append(args, *f.TenantID)
		where += ` AND tenant_id = $` + itoa(len(args))
	}
	if f.CaseID != nil {
		args = append(args, *f.CaseID)
		where += ` AND case_id = $` + itoa(len(args))
	}
	if f.Type != nil {
		args = append(args, *f.Type)
		where += ` AND type = $` + itoa(len(args))
	}
	if f.Level != nil {
		args = append(args, *f.Level)
		where += ` AND level = $` + itoa(len(args))
	}
	if f.StartTime != nil {
		args = append(args, *f.StartTime)
		where += ` AND created_at >= $` + itoa(len(args))
	}
	if f.EndTime != nil {
		args = append(args, *f.EndTime)
		where += ` AND created_at <= $` + itoa(len(args))
	}

	var total int64
	if err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit)
	query := `
		SELECT id, created_at, tenant_id, case_id, actor_id, type, level,
		       description, details
		FROM event_logs` + where + `
		ORDER BY created_at DESC
		LIMIT $` + itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + itoa(len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		e := &models.EventLog{}
		if err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.TenantID, &e.CaseID, &e.ActorID,
			&e.Type, &e.Level, &e.Description, &e.Details,
		); err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}
