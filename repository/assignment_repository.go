package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"complaintengine/models"

	"github.com/google/uuid"
)

// AssignmentRepository handles database operations for assignments
type AssignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// WithTx returns a copy bound to tx
func (r *AssignmentRepository) WithTx(tx *sql.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

const assignmentColumns = `
	assignment_id, complaint_id, employee_id, status, assigned_by, mode, notes,
	superseded_by, assigned_at, accepted_at, rejected_at, started_at,
	completed_at, verified_at, superseded_at`

// stampColumns maps a target status to the timestamp column it sets
var stampColumns = map[models.AssignmentStatus]string{
	models.AssignmentAccepted:   "accepted_at",
	models.AssignmentRejected:   "rejected_at",
	models.AssignmentInProgress: "started_at",
	models.AssignmentCompleted:  "completed_at",
	models.AssignmentVerified:   "verified_at",
}

// CreateAssignment inserts a new assignment row
func (r *AssignmentRepository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.AssignmentID == "" {
		a.AssignmentID = uuid.New().String()
	}
	a.AssignedAt = dbTime(a.AssignedAt)
	query := `INSERT INTO assignments (` + assignmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.AssignmentID, a.ComplaintID, a.EmployeeID, a.Status, a.AssignedBy, a.Mode, a.Notes,
		a.SupersededBy, a.AssignedAt, a.AcceptedAt, a.RejectedAt, a.StartedAt,
		a.CompletedAt, a.VerifiedAt, a.SupersededAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func scanAssignment(row interface{ Scan(...interface{}) error }) (*models.Assignment, error) {
	var a models.Assignment
	if err := row.Scan(
		&a.AssignmentID, &a.ComplaintID, &a.EmployeeID, &a.Status, &a.AssignedBy, &a.Mode, &a.Notes,
		&a.SupersededBy, &a.AssignedAt, &a.AcceptedAt, &a.RejectedAt, &a.StartedAt,
		&a.CompletedAt, &a.VerifiedAt, &a.SupersededAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssignmentByID retrieves an assignment by ID
func (r *AssignmentRepository) GetAssignmentByID(ctx context.Context, assignmentID string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE assignment_id = ?`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, assignmentID))
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("assignment", assignmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// GetAssignmentsByComplaint returns every assignment of a complaint, oldest first
func (r *AssignmentRepository) GetAssignmentsByComplaint(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE complaint_id = ? ORDER BY assigned_at ASC, assignment_id ASC`
	return r.list(ctx, query, complaintID)
}

// CountWorkloadAssignments counts an employee's assignments that hold workload
func (r *AssignmentRepository) CountWorkloadAssignments(ctx context.Context, employeeID string) (int, error) {
	args := []interface{}{employeeID}
	for _, s := range models.WorkloadStatuses {
		args = append(args, s)
	}
	query := `SELECT COUNT(*) FROM assignments WHERE employee_id = ? AND status IN (` + placeholders(len(models.WorkloadStatuses)) + `)`
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// UpdateStatus moves an assignment from one status to the next and stamps the
// matching timestamp. It returns false when the row was no longer in from.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, assignmentID string, from, to models.AssignmentStatus, at time.Time) (bool, error) {
	column, ok := stampColumns[to]
	if !ok {
		return false, fmt.Errorf("no timestamp column for assignment status %s", to)
	}
	query := `UPDATE assignments SET status = ?, ` + column + ` = ? WHERE assignment_id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query, to, dbTime(at), assignmentID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update assignment status: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// MarkSuperseded closes a live assignment that is being replaced by supersededBy.
func (r *AssignmentRepository) MarkSuperseded(ctx context.Context, assignmentID, supersededBy string, at time.Time) (bool, error) {
	args := []interface{}{models.AssignmentSuperseded, supersededBy, dbTime(at), assignmentID}
	for _, s := range models.WorkloadStatuses {
		args = append(args, s)
	}
	query := `
		UPDATE assignments
		SET status = ?, superseded_by = ?, superseded_at = ?
		WHERE assignment_id = ? AND status IN (` + placeholders(len(models.WorkloadStatuses)) + `)
	`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to supersede assignment: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// GetLiveAssignment returns the assignment of complaintID that still holds
// workload, or nil when there is none.
func (r *AssignmentRepository) GetLiveAssignment(ctx context.Context, complaintID string) (*models.Assignment, error) {
	args := []interface{}{complaintID}
	for _, s := range models.WorkloadStatuses {
		args = append(args, s)
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE complaint_id = ? AND status IN (` + placeholders(len(models.WorkloadStatuses)) + `)
		ORDER BY assigned_at DESC, assignment_id DESC
		LIMIT 1`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live assignment: %w", err)
	}
	return a, nil
}

// Release closes a live assignment as completed or superseded without a
// replacement. It returns false when the row no longer held workload.
func (r *AssignmentRepository) Release(ctx context.Context, assignmentID string, to models.AssignmentStatus, at time.Time) (bool, error) {
	var column string
	switch to {
	case models.AssignmentCompleted:
		column = "completed_at"
	case models.AssignmentSuperseded:
		column = "superseded_at"
	default:
		return false, fmt.Errorf("assignment cannot be released as %s", to)
	}
	args := []interface{}{to, dbTime(at), assignmentID}
	for _, s := range models.WorkloadStatuses {
		args = append(args, s)
	}
	query := `UPDATE assignments SET status = ?, ` + column + ` = ?
		WHERE assignment_id = ? AND status IN (` + placeholders(len(models.WorkloadStatuses)) + `)`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to release assignment: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}
