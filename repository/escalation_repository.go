package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"complaintengine/models"

	"github.com/google/uuid"
)

// EscalationRepository handles database operations for escalation records
type EscalationRepository struct {
	db DBTX
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db DBTX) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// WithTx returns a copy bound to tx
func (r *EscalationRepository) WithTx(tx *sql.Tx) *EscalationRepository {
	return &EscalationRepository{db: tx}
}

// CreateEscalationRecord inserts an escalation record. A second record for the
// same (complaint, cycle, level) is rejected with a ConflictError.
func (r *EscalationRepository) CreateEscalationRecord(ctx context.Context, rec *models.EscalationRecord) error {
	if rec.EscalationID == "" {
		rec.EscalationID = uuid.New().String()
	}
	rec.CreatedAt = dbTime(rec.CreatedAt)
	query := `
		INSERT INTO escalation_records (
			escalation_id, complaint_id, escalation_cycle, level, from_level,
			reason, overdue_hours, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.EscalationID, rec.ComplaintID, rec.Cycle, rec.Level, rec.FromLevel,
		rec.Reason, rec.OverdueHours, rec.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return models.NewConflictError(models.ConflictDuplicate,
			fmt.Sprintf("escalation level %d already recorded for complaint %s", rec.Level, rec.ComplaintID))
	}
	if err != nil {
		return fmt.Errorf("failed to create escalation record: %w", err)
	}
	return nil
}

const escalationColumns = `
	escalation_id, complaint_id, escalation_cycle, level, from_level,
	reason, overdue_hours, created_at`

// GetEscalationsByComplaint returns a complaint's escalation records in the order they were written
func (r *EscalationRepository) GetEscalationsByComplaint(ctx context.Context, complaintID string) ([]models.EscalationRecord, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalation_records WHERE complaint_id = ? ORDER BY escalation_cycle ASC, level ASC`
	return r.list(ctx, query, complaintID)
}

// ListCreatedBetween returns records created in [from, to)
func (r *EscalationRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]models.EscalationRecord, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalation_records WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`
	return r.list(ctx, query, dbTime(from), dbTime(to))
}

func (r *EscalationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.EscalationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation records: %w", err)
	}
	defer rows.Close()

	var records []models.EscalationRecord
	for rows.Next() {
		var rec models.EscalationRecord
		if err := rows.Scan(
			&rec.EscalationID, &rec.ComplaintID, &rec.Cycle, &rec.Level, &rec.FromLevel,
			&rec.Reason, &rec.OverdueHours, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan escalation record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
