package models

import (
	"time"
)

// EscalationReason is the reason code stored on an escalation record
type EscalationReason string

const (
	ReasonSLABreach EscalationReason = "SLA_BREACH"
)

// EscalationThreshold maps hours past the SLA deadline to an escalation level
type EscalationThreshold struct {
	AfterHours float64 `json:"after_hours" yaml:"after_hours"`
	Level      int     `json:"level" yaml:"level"`
}

// SLARule is immutable reference data keyed by (category, priority).
// CategoryID "*" matches every category for the rule's priority.
type SLARule struct {
	CategoryID          string                `json:"category_id" yaml:"category"`
	Priority            Priority              `json:"priority" yaml:"priority"`
	ResolutionTimeHours float64               `json:"resolution_time_hours" yaml:"resolution_hours"`
	Thresholds          []EscalationThreshold `json:"thresholds" yaml:"thresholds"`
}

// EscalationRecord is written once per (complaint, cycle, level) and never updated
type EscalationRecord struct {
	EscalationID string           `db:"escalation_id" json:"escalation_id"`
	ComplaintID  string           `db:"complaint_id" json:"complaint_id"`
	Cycle        int              `db:"escalation_cycle" json:"escalation_cycle"`
	Level        int              `db:"level" json:"level"`
	FromLevel    int              `db:"from_level" json:"from_level"`
	Reason       EscalationReason `db:"reason" json:"reason"`
	OverdueHours float64          `db:"overdue_hours" json:"overdue_hours"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// EscalationResult represents the outcome of evaluating one complaint
type EscalationResult struct {
	ComplaintID  string    `json:"complaint_id"`
	Escalated    bool      `json:"escalated"`
	FromLevel    int       `json:"from_level"`
	Level        int       `json:"level"`
	OverdueHours float64   `json:"overdue_hours"`
	EscalationID string    `json:"escalation_id,omitempty"`
	Reason       string    `json:"reason"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// SweepResult summarizes one pass of the escalation monitor
type SweepResult struct {
	Evaluated int                `json:"evaluated"`
	Escalated int                `json:"escalated"`
	Failed    int                `json:"failed"`
	Results   []EscalationResult `json:"results"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}
