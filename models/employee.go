package models

import (
	"database/sql"
	"time"
)

// EmployeeStatus is the availability of an employee for new work.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeOnLeave  EmployeeStatus = "on_leave"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is a department worker who can own complaints.
// CurrentWorkload equals the number of the employee's assignments in
// WorkloadStatuses; it is only changed together with those assignments.
type Employee struct {
	EmployeeID      string         `db:"employee_id" json:"employee_id"`
	UserID          string         `db:"user_id" json:"user_id"`
	DepartmentID    string         `db:"department_id" json:"department_id"`
	ZoneID          sql.NullString `db:"zone_id" json:"zone_id"`
	Status          EmployeeStatus `db:"status" json:"status"`
	CurrentWorkload int            `db:"current_workload" json:"current_workload"`
	RatingAverage   float64        `db:"rating_average" json:"rating_average"`
	JoinedDate      time.Time      `db:"joined_date" json:"joined_date"`
	Version         int64          `db:"version" json:"version"`
}

// AssignmentStatus is the lifecycle state of one assignment row.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentAccepted   AssignmentStatus = "accepted"
	AssignmentRejected   AssignmentStatus = "rejected"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentVerified   AssignmentStatus = "verified"
	AssignmentSuperseded AssignmentStatus = "superseded"
)

// WorkloadStatuses are the assignment statuses counted in Employee.CurrentWorkload.
var WorkloadStatuses = []AssignmentStatus{
	AssignmentPending,
	AssignmentAccepted,
	AssignmentInProgress,
}

// HoldsWorkload reports whether an assignment in this status occupies the employee.
func (s AssignmentStatus) HoldsWorkload() bool {
	for _, status := range WorkloadStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Assignment links a complaint to its owning employee. A transfer creates a
// new row and marks the previous one superseded.
type Assignment struct {
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	ComplaintID  string           `db:"complaint_id" json:"complaint_id"`
	EmployeeID   string           `db:"employee_id" json:"employee_id"`
	Status       AssignmentStatus `db:"status" json:"status"`
	AssignedBy   string           `db:"assigned_by" json:"assigned_by"`
	Mode         string           `db:"mode" json:"mode"`
	Notes        sql.NullString   `db:"notes" json:"notes,omitempty"`
	SupersededBy sql.NullString   `db:"superseded_by" json:"superseded_by,omitempty"`
	AssignedAt   time.Time        `db:"assigned_at" json:"assigned_at"`
	AcceptedAt   sql.NullTime     `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt   sql.NullTime     `db:"rejected_at" json:"rejected_at,omitempty"`
	StartedAt    sql.NullTime     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  sql.NullTime     `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedAt   sql.NullTime     `db:"verified_at" json:"verified_at,omitempty"`
	SupersededAt sql.NullTime     `db:"superseded_at" json:"superseded_at,omitempty"`
}

// IsActive reports whether this row is the complaint's live assignment.
func (a *Assignment) IsActive() bool {
	switch a.Status {
	case AssignmentRejected, AssignmentSuperseded, AssignmentCompleted, AssignmentVerified:
		return false
	}
	return true
}
