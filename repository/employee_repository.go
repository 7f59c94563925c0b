package repository

import (
	"context"
	"database/sql"
	"fmt"

	"complaintengine/models"

	"github.com/google/uuid"
)

// EmployeeRepository handles database operations for employees and their workload counter
type EmployeeRepository struct {
	db DBTX
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db DBTX) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// WithTx returns a copy bound to tx
func (r *EmployeeRepository) WithTx(tx *sql.Tx) *EmployeeRepository {
	return &EmployeeRepository{db: tx}
}

const employeeColumns = `
	employee_id, user_id, department_id, zone_id, status,
	current_workload, rating_average, joined_date, version`

// CreateEmployee inserts an employee
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, e *models.Employee) error {
	if e.EmployeeID == "" {
		e.EmployeeID = uuid.New().String()
	}
	e.JoinedDate = dbTime(e.JoinedDate)
	query := `INSERT INTO employees (` + employeeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.EmployeeID, e.UserID, e.DepartmentID, e.ZoneID, e.Status,
		e.CurrentWorkload, e.RatingAverage, e.JoinedDate, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

func scanEmployee(row interface{ Scan(...interface{}) error }) (*models.Employee, error) {
	var e models.Employee
	if err := row.Scan(
		&e.EmployeeID, &e.UserID, &e.DepartmentID, &e.ZoneID, &e.Status,
		&e.CurrentWorkload, &e.RatingAverage, &e.JoinedDate, &e.Version,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEmployeeByID retrieves an employee by ID
func (r *EmployeeRepository) GetEmployeeByID(ctx context.Context, employeeID string) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE employee_id = ?`
	e, err := scanEmployee(r.db.QueryRowContext(ctx, query, employeeID))
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("employee", employeeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, nil
}

// ListEligible returns active employees of a department. When zoneID is set
// only employees of that zone are returned.
func (r *EmployeeRepository) ListEligible(ctx context.Context, departmentID string, zoneID sql.NullString) ([]models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE department_id = ? AND status = ?`
	args := []interface{}{departmentID, models.EmployeeActive}
	if zoneID.Valid {
		query += ` AND zone_id = ?`
		args = append(args, zoneID.String)
	}
	query += ` ORDER BY current_workload ASC, rating_average DESC, joined_date ASC, employee_id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

// IncrementWorkload adds one to an active employee's workload if version is unchanged.
func (r *EmployeeRepository) IncrementWorkload(ctx context.Context, employeeID string, version int64) (bool, error) {
	query := `
		UPDATE employees
		SET current_workload = current_workload + 1, version = version + 1
		WHERE employee_id = ? AND version = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, employeeID, version, models.EmployeeActive)
	if err != nil {
		return false, fmt.Errorf("failed to increment workload: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}

// DecrementWorkload releases one unit of workload if version is unchanged.
// The counter never goes below zero.
func (r *EmployeeRepository) DecrementWorkload(ctx context.Context, employeeID string, version int64) (bool, error) {
	query := `
		UPDATE employees
		SET current_workload = current_workload - 1, version = version + 1
		WHERE employee_id = ? AND version = ? AND current_workload > 0
	`
	result, err := r.db.ExecContext(ctx, query, employeeID, version)
	if err != nil {
		return false, fmt.Errorf("failed to decrement workload: %w", err)
	}
	n, err := rowsAffected(result)
	return n == 1, err
}
