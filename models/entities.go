package models

import (
	"database/sql"
	"time"
)

// ComplaintStatus represents the possible statuses of a complaint
type ComplaintStatus string

const (
	StatusDraft       ComplaintStatus = "draft"
	StatusSubmitted   ComplaintStatus = "submitted"
	StatusUnderReview ComplaintStatus = "under_review"
	StatusAssigned    ComplaintStatus = "assigned"
	StatusInProgress  ComplaintStatus = "in_progress"
	StatusOnHold      ComplaintStatus = "on_hold"
	StatusResolved    ComplaintStatus = "resolved"
	StatusClosed      ComplaintStatus = "closed"
	StatusRejected    ComplaintStatus = "rejected"
)

// ActiveStatuses is the set of statuses the escalation monitor evaluates.
var ActiveStatuses = []ComplaintStatus{
	StatusSubmitted,
	StatusUnderReview,
	StatusAssigned,
	StatusInProgress,
	StatusOnHold,
}

// IsActive reports whether the SLA clock is running for this status.
func (s ComplaintStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// IsTerminal reports whether only an explicit reopen can leave this status.
func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// Priority represents complaint priority levels
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps free-form input to a Priority; ok is false for unknown values.
func ParsePriority(value string) (Priority, bool) {
	switch Priority(value) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(value), true
	}
	return "", false
}

// ActorType represents who performed an action
type ActorType string

const (
	ActorCitizen  ActorType = "citizen"
	ActorEmployee ActorType = "employee"
	ActorOperator ActorType = "operator"
	ActorSystem   ActorType = "system"
)

// Complaint represents a complaint entity.
// SLADeadline >= SubmittedAt always holds; EscalationLevel only grows while
// the complaint is active and is reset (with a new EscalationCycle) on reopen.
type Complaint struct {
	ComplaintID        string          `db:"complaint_id" json:"complaint_id"`
	ComplaintNumber    string          `db:"complaint_number" json:"complaint_number"`
	CitizenID          string          `db:"citizen_id" json:"citizen_id"`
	Title              string          `db:"title" json:"title"`
	Description        string          `db:"description" json:"description"`
	CategoryID         string          `db:"category_id" json:"category_id"`
	DepartmentID       string          `db:"department_id" json:"department_id"`
	ZoneID             sql.NullString  `db:"zone_id" json:"zone_id"`
	Priority           Priority        `db:"priority" json:"priority"`
	Status             ComplaintStatus `db:"status" json:"status"`
	SubmittedAt        time.Time       `db:"submitted_at" json:"submitted_at"`
	SLADeadline        time.Time       `db:"sla_deadline" json:"sla_deadline"`
	EscalationLevel    int             `db:"escalation_level" json:"escalation_level"`
	EscalationCycle    int             `db:"escalation_cycle" json:"escalation_cycle"`
	AssignedEmployeeID sql.NullString  `db:"assigned_employee_id" json:"assigned_employee_id"`
	Version            int64           `db:"version" json:"version"`
	ResolvedAt         sql.NullTime    `db:"resolved_at" json:"resolved_at"`
	ClosedAt           sql.NullTime    `db:"closed_at" json:"closed_at"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// IsEscalated is the orthogonal "escalated" flag; it is not a status.
func (c *Complaint) IsEscalated() bool {
	return c.EscalationLevel > 0
}

// ComplaintStatusHistory represents a status change record (immutable)
type ComplaintStatusHistory struct {
	HistoryID     string          `db:"history_id" json:"history_id"`
	ComplaintID   string          `db:"complaint_id" json:"complaint_id"`
	OldStatus     sql.NullString  `db:"old_status" json:"old_status"`
	NewStatus     ComplaintStatus `db:"new_status" json:"new_status"`
	ChangedBy     string          `db:"changed_by" json:"changed_by"`
	ChangedByType ActorType       `db:"changed_by_type" json:"changed_by_type"`
	Notes         sql.NullString  `db:"notes" json:"notes"`
	Version       int64           `db:"complaint_version" json:"complaint_version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Category maps a complaint category to the owning department.
type Category struct {
	CategoryID   string `db:"category_id" json:"category_id"`
	Name         string `db:"name" json:"name"`
	DepartmentID string `db:"department_id" json:"department_id"`
}

// UserRole is the role used by role-targeted notifications.
type UserRole string

const (
	RoleCitizen        UserRole = "citizen"
	RoleEmployee       UserRole = "employee"
	RoleSupervisor     UserRole = "supervisor"
	RoleDepartmentHead UserRole = "department_head"
	RoleAdmin          UserRole = "admin"
)

// User is a notification recipient.
type User struct {
	UserID       string         `db:"user_id" json:"user_id"`
	Name         string         `db:"name" json:"name"`
	Email        sql.NullString `db:"email" json:"email"`
	Phone        sql.NullString `db:"phone" json:"phone"`
	Role         UserRole       `db:"role" json:"role"`
	DepartmentID sql.NullString `db:"department_id" json:"department_id"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
