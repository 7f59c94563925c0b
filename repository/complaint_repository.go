package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"complaintengine/models"

	"github.com/google/uuid"
)

// ComplaintRepository handles database operations for complaints and their status history
type ComplaintRepository struct {
	db DBTX
}

// NewComplaintRepository creates a new complaint repository
func NewComplaintRepository(db DBTX) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// WithTx returns a copy bound to tx
func (r *ComplaintRepository) WithTx(tx *sql.Tx) *ComplaintRepository {
	return &ComplaintRepository{db: tx}
}

const complaintColumns = `
	complaint_id, complaint_number, citizen_id, title, description,
	category_id, department_id, zone_id, priority, status,
	submitted_at, sla_deadline, escalation_level, escalation_cycle,
	assigned_employee_id, version, resolved_at, closed_at, created_at, updated_at`

// GenerateComplaintNumber generates a unique complaint number
// Format: COMP-YYYYMMDD-{UUID}
func GenerateComplaintNumber(now time.Time) string {
	datePrefix := now.UTC().Format("20060102")
	uniqueID := uuid.New().String()[:8]
	return fmt.Sprintf("COMP-%s-%s", datePrefix, uniqueID)
}

// CreateComplaint creates a new complaint in the database
func (r *ComplaintRepository) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	if c.ComplaintID == "" {
		c.ComplaintID = uuid.New().String()
	}
	c.SubmittedAt = dbTime(c.SubmittedAt)
	c.SLADeadline = dbTime(c.SLADeadline)
	c.CreatedAt = dbTime(c.CreatedAt)
	c.UpdatedAt = dbTime(c.UpdatedAt)

	query := `
		INSERT INTO complaints (` + complaintColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ComplaintID, c.ComplaintNumber, c.CitizenID, c.Title, c.Description,
		c.CategoryID, c.DepartmentID, c.ZoneID, c.Priority, c.Status,
		c.SubmittedAt, c.SLADeadline, c.EscalationLevel, c.EscalationCycle,
		c.AssignedEmployeeID, c.Version, c.ResolvedAt, c.ClosedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	return nil
}

func scanComplaint(row interface{ Scan(...interface{}) error }) (*models.Complaint, error) {
	var c models.Complaint
	err := row.Scan(
		&c.ComplaintID, &c.ComplaintNumber, &c.CitizenID, &c.Title, &c.Description,
		&c.CategoryID, &c.DepartmentID, &c.ZoneID, &c.Priority, &c.Status,
		&c.SubmittedAt, &c.SLADeadline, &c.EscalationLevel, &c.EscalationCycle,
		&c.AssignedEmployeeID, &c.Version, &c.ResolvedAt, &c.ClosedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetComplaintByID retrieves a complaint by ID
func (r *ComplaintRepository) GetComplaintByID(ctx context.Context, complaintID string) (*models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE complaint_id = ?`
	c, err := scanComplaint(r.db.QueryRowContext(ctx, query, complaintID))
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("complaint", complaintID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return c, nil
}

// ClaimOwner sets the owner only while the complaint is unowned.
// It returns false when another writer claimed it first.
func (r *ComplaintRepository) ClaimOwner(ctx context.Context, complaintID, employeeID string, now time.Time) (bool, error) {
	query := `
		UPDATE complaints
		SET assigned_employee_id = ?, updated_at = ?
		WHERE complaint_id = ? AND assigned_employee_id IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, employeeID, dbTime(now), complaintID)
	if err != nil {
		return false, fmt.Errorf("failed to claim complaint: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// RepointOwner moves ownership from one employee to another.
func (r *ComplaintRepository) RepointOwner(ctx context.Context, complaintID, fromEmployeeID, toEmployeeID string, now time.Time) (bool, error) {
	query := `
		UPDATE complaints
		SET assigned_employee_id = ?, updated_at = ?
		WHERE complaint_id = ? AND assigned_employee_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, toEmployeeID, dbTime(now), complaintID, fromEmployeeID)
	if err != nil {
		return false, fmt.Errorf("failed to repoint complaint owner: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// ClearOwner removes the owner when it is still employeeID.
func (r *ComplaintRepository) ClearOwner(ctx context.Context, complaintID, employeeID string, now time.Time) error {
	query := `
		UPDATE complaints
		SET assigned_employee_id = NULL, updated_at = ?
		WHERE complaint_id = ? AND assigned_employee_id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, dbTime(now), complaintID, employeeID); err != nil {
		return fmt.Errorf("failed to clear complaint owner: %w", err)
	}
	return nil
}

// UpdateStatus moves c to newStatus if nobody changed it since it was read.
// On success c reflects the stored row.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, c *models.Complaint, newStatus models.ComplaintStatus, now time.Time) (bool, error) {
	now = dbTime(now)
	resolvedAt := c.ResolvedAt
	closedAt := c.ClosedAt
	switch newStatus {
	case models.StatusResolved:
		resolvedAt = sql.NullTime{Time: now, Valid: true}
	case models.StatusClosed:
		closedAt = sql.NullTime{Time: now, Valid: true}
	}

	query := `
		UPDATE complaints
		SET status = ?, resolved_at = ?, closed_at = ?, version = version + 1, updated_at = ?
		WHERE complaint_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query, newStatus, resolvedAt, closedAt, now, c.ComplaintID, c.Version)
	if err != nil {
		return false, fmt.Errorf("failed to update complaint status: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil || n != 1 {
		return false, err
	}
	c.Status = newStatus
	c.ResolvedAt = resolvedAt
	c.ClosedAt = closedAt
	c.Version++
	c.UpdatedAt = now
	return true, nil
}

// Reopen puts a finished complaint back under review with a fresh SLA clock
// and a new escalation cycle.
func (r *ComplaintRepository) Reopen(ctx context.Context, c *models.Complaint, deadline, now time.Time) (bool, error) {
	now = dbTime(now)
	deadline = dbTime(deadline)
	query := `
		UPDATE complaints
		SET status = ?, escalation_level = 0, escalation_cycle = escalation_cycle + 1,
			assigned_employee_id = NULL, sla_deadline = ?, resolved_at = NULL, closed_at = NULL,
			version = version + 1, updated_at = ?
		WHERE complaint_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query, models.StatusUnderReview, deadline, now, c.ComplaintID, c.Version)
	if err != nil {
		return false, fmt.Errorf("failed to reopen complaint: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil || n != 1 {
		return false, err
	}
	c.Status = models.StatusUnderReview
	c.EscalationLevel = 0
	c.EscalationCycle++
	c.AssignedEmployeeID = sql.NullString{}
	c.SLADeadline = deadline
	c.ResolvedAt = sql.NullTime{}
	c.ClosedAt = sql.NullTime{}
	c.Version++
	c.UpdatedAt = now
	return true, nil
}

// RaiseEscalationLevel sets escalation_level to level only if it is higher than
// the stored one and the complaint is still active.
func (r *ComplaintRepository) RaiseEscalationLevel(ctx context.Context, complaintID string, level int, now time.Time) (bool, error) {
	args := []interface{}{level, dbTime(now), complaintID, level}
	for _, s := range models.ActiveStatuses {
		args = append(args, s)
	}
	query := `
		UPDATE complaints
		SET escalation_level = ?, updated_at = ?
		WHERE complaint_id = ? AND escalation_level < ?
			AND status IN (` + placeholders(len(models.ActiveStatuses)) + `)
	`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to raise escalation level: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// OverdueCursor is a keyset position in the overdue scan
type OverdueCursor struct {
	SLADeadline time.Time
	ComplaintID string
}

// ListOverdueActive returns up to limit active complaints whose deadline
// passed, ordered by (sla_deadline, complaint_id) and strictly after the
// cursor. A zero cursor starts from the beginning.
func (r *ComplaintRepository) ListOverdueActive(ctx context.Context, now time.Time, after OverdueCursor, limit int) ([]OverdueCursor, error) {
	args := []interface{}{}
	for _, s := range models.ActiveStatuses {
		args = append(args, s)
	}
	args = append(args, dbTime(now))
	query := `
		SELECT sla_deadline, complaint_id
		FROM complaints
		WHERE status IN (` + placeholders(len(models.ActiveStatuses)) + `)
			AND sla_deadline < ?`
	if after.ComplaintID != "" {
		deadline := dbTime(after.SLADeadline)
		query += `
			AND (sla_deadline > ? OR (sla_deadline = ? AND complaint_id > ?))`
		args = append(args, deadline, deadline, after.ComplaintID)
	}
	query += `
		ORDER BY sla_deadline ASC, complaint_id ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue complaints: %w", err)
	}
	defer rows.Close()

	var page []OverdueCursor
	for rows.Next() {
		var c OverdueCursor
		if err := rows.Scan(&c.SLADeadline, &c.ComplaintID); err != nil {
			return nil, fmt.Errorf("failed to scan overdue complaint: %w", err)
		}
		page = append(page, c)
	}
	return page, rows.Err()
}

// ComplaintFilter narrows ListSubmittedBetween
type ComplaintFilter struct {
	ZoneID       string
	DepartmentID string
}

// ListSubmittedBetween returns complaints submitted in [from, to).
func (r *ComplaintRepository) ListSubmittedBetween(ctx context.Context, from, to time.Time, filter ComplaintFilter) ([]models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE submitted_at >= ? AND submitted_at < ?`
	args := []interface{}{dbTime(from), dbTime(to)}
	if filter.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, filter.ZoneID)
	}
	if filter.DepartmentID != "" {
		query += ` AND department_id = ?`
		args = append(args, filter.DepartmentID)
	}
	query += ` ORDER BY submitted_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query complaints: %w", err)
	}
	defer rows.Close()

	var complaints []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan complaint: %w", err)
		}
		complaints = append(complaints, *c)
	}
	return complaints, rows.Err()
}

// CreateStatusHistory appends one immutable history row
func (r *ComplaintRepository) CreateStatusHistory(ctx context.Context, h *models.ComplaintStatusHistory) error {
	if h.HistoryID == "" {
		h.HistoryID = uuid.New().String()
	}
	h.CreatedAt = dbTime(h.CreatedAt)
	query := `
		INSERT INTO complaint_status_history (
			history_id, complaint_id, old_status, new_status,
			changed_by, changed_by_type, notes, complaint_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.HistoryID, h.ComplaintID, h.OldStatus, h.NewStatus,
		h.ChangedBy, h.ChangedByType, h.Notes, h.Version, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}
	return nil
}

// GetStatusHistory returns the history of a complaint, oldest first
func (r *ComplaintRepository) GetStatusHistory(ctx context.Context, complaintID string) ([]models.ComplaintStatusHistory, error) {
	query := `
		SELECT history_id, complaint_id, old_status, new_status,
			changed_by, changed_by_type, notes, complaint_version, created_at
		FROM complaint_status_history
		WHERE complaint_id = ?
		ORDER BY complaint_version ASC
	`
	rows, err := r.db.QueryContext(ctx, query, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var history []models.ComplaintStatusHistory
	for rows.Next() {
		var h models.ComplaintStatusHistory
		if err := rows.Scan(
			&h.HistoryID, &h.ComplaintID, &h.OldStatus, &h.NewStatus,
			&h.ChangedBy, &h.ChangedByType, &h.Notes, &h.Version, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
