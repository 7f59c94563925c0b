package models

import "time"

// ErrorResponse is the JSON body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// CreateComplaintRequest represents the request to create a new complaint
type CreateComplaintRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CategoryID  string  `json:"category_id"`
	ZoneID      *string `json:"zone_id,omitempty"`
	Priority    string  `json:"priority,omitempty"`
}

// CreateComplaintResponse represents the response after creating a complaint
type CreateComplaintResponse struct {
	ComplaintID     string          `json:"complaint_id"`
	ComplaintNumber string          `json:"complaint_number"`
	Status          ComplaintStatus `json:"status"`
	SLADeadline     time.Time       `json:"sla_deadline"`
	CreatedAt       time.Time       `json:"created_at"`
}

// UpdateStatusRequest represents a ledger transition request
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// ReopenRequest represents a reopen request
type ReopenRequest struct {
	Notes string `json:"notes,omitempty"`
}

// AssignComplaintRequest is the body of POST /assign-complaint.
// An empty EmployeeID selects automatic assignment.
type AssignComplaintRequest struct {
	ComplaintID string `json:"complaintId"`
	EmployeeID  string `json:"employeeId,omitempty"`
	AssignedBy  string `json:"assignedBy"`
	Notes       string `json:"notes,omitempty"`
}

// AssignComplaintResponse is returned after a successful claim
type AssignComplaintResponse struct {
	Assignment *Assignment      `json:"assignment"`
	Status     AssignmentStatus `json:"status"`
}

// TransferAssignmentRequest moves an assignment to another employee
type TransferAssignmentRequest struct {
	EmployeeID string `json:"employeeId"`
	Notes      string `json:"notes,omitempty"`
}

// UpdateAssignmentStatusRequest moves an assignment through its lifecycle
type UpdateAssignmentStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// SendNotificationRequest is the body of POST /send-notification.
// Exactly one of UserID, UserIDs or Role must be set.
type SendNotificationRequest struct {
	UserID        string                 `json:"userId,omitempty"`
	UserIDs       []string               `json:"userIds,omitempty"`
	Role          string                 `json:"role,omitempty"`
	DepartmentID  string                 `json:"departmentId,omitempty"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Type          string                 `json:"type"`
	ReferenceID   string                 `json:"referenceId,omitempty"`
	ReferenceType string                 `json:"referenceType,omitempty"`
}

// GenerateAnalyticsRequest is the body of POST /generate-analytics
type GenerateAnalyticsRequest struct {
	Period       string `json:"period"`
	ZoneID       string `json:"zoneId,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// DailyCount is one point of the analytics trend
type DailyCount struct {
	Date      string `json:"date"`
	Submitted int    `json:"submitted"`
	Resolved  int    `json:"resolved"`
	Escalated int    `json:"escalated"`
}

// AnalyticsReport aggregates complaints submitted within a period
type AnalyticsReport struct {
	Period               string         `json:"period"`
	From                 time.Time      `json:"from"`
	To                   time.Time      `json:"to"`
	ZoneID               string         `json:"zoneId,omitempty"`
	DepartmentID         string         `json:"departmentId,omitempty"`
	TotalComplaints      int            `json:"totalComplaints"`
	ByStatus             map[string]int `json:"byStatus"`
	ByPriority           map[string]int `json:"byPriority"`
	ByEscalationLevel    map[string]int `json:"byEscalationLevel"`
	SLABreached          int            `json:"slaBreached"`
	AverageResolutionHrs float64        `json:"averageResolutionHours"`
	Trend                []DailyCount   `json:"trend"`
}

// UpdatePreferencesRequest replaces the caller's notification preferences
type UpdatePreferencesRequest struct {
	Channels       map[string]map[string]bool `json:"channels"`
	QuietStart     string                     `json:"quiet_start,omitempty"`
	QuietEnd       string                     `json:"quiet_end,omitempty"`
	Timezone       string                     `json:"timezone,omitempty"`
	CriticalBypass *bool                      `json:"critical_bypass,omitempty"`
}

// RegisterPushTokenRequest registers a device token for the caller
type RegisterPushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform,omitempty"`
}

// CreateUserRequest registers a user in the directory
type CreateUserRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}

// CreateEmployeeRequest registers an employee for an existing user
type CreateEmployeeRequest struct {
	UserID        string  `json:"user_id"`
	DepartmentID  string  `json:"department_id"`
	ZoneID        string  `json:"zone_id,omitempty"`
	RatingAverage float64 `json:"rating_average,omitempty"`
}

// CreateDepartmentRequest creates a department
type CreateDepartmentRequest struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	IsDefault    bool   `json:"is_default,omitempty"`
}
