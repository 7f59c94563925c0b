// Package events carries assignment and escalation events from the services
// that produce them to independent subscribers such as the notification fan-out.
package events

import (
	"context"
	"time"
)

// Event types
const (
	AssignmentCreated      = "assignment.created"
	AssignmentTransferred  = "assignment.transferred"
	ComplaintEscalated     = "complaint.escalated"
	ComplaintStatusChanged = "complaint.status_changed"

	// AllEvents subscribes a handler to every type.
	AllEvents = "*"
)

// Event is published once per committed state change.
type Event struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	ComplaintID        string    `json:"complaint_id"`
	ComplaintNumber    string    `json:"complaint_number,omitempty"`
	CitizenID          string    `json:"citizen_id,omitempty"`
	DepartmentID       string    `json:"department_id,omitempty"`
	AssignmentID       string    `json:"assignment_id,omitempty"`
	EmployeeUserID     string    `json:"employee_user_id,omitempty"`
	PreviousEmployeeID string    `json:"previous_employee_id,omitempty"`
	FromLevel          int       `json:"from_level,omitempty"`
	Level              int       `json:"level,omitempty"`
	MaxLevel           int       `json:"max_level,omitempty"`
	OverdueHours       float64   `json:"overdue_hours,omitempty"`
	OldStatus          string    `json:"old_status,omitempty"`
	NewStatus          string    `json:"new_status,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Handler consumes one event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, e Event) error

// Bus is a publish/subscribe channel between services.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(eventType string, h Handler)
	Close() error
}
