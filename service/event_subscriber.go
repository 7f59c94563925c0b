package service

import (
	"context"
	"errors"
	"fmt"

	"complaintengine/events"
	"complaintengine/models"

	"go.uber.org/zap"
)

// citizenVisibleStatuses are the complaint statuses the citizen is told about
var citizenVisibleStatuses = map[string]bool{
	string(models.StatusUnderReview): true,
	string(models.StatusInProgress):  true,
	string(models.StatusResolved):    true,
	string(models.StatusClosed):      true,
	string(models.StatusRejected):    true,
}

// EventSubscriber turns assignment and escalation events into notifications
type EventSubscriber struct {
	notifications *NotificationService
	logger        *zap.Logger
}

// NewEventSubscriber creates a subscriber that dispatches through notifications
func NewEventSubscriber(notifications *NotificationService, logger *zap.Logger) *EventSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSubscriber{notifications: notifications, logger: logger.Named("subscriber")}
}

// Register subscribes the handlers on bus
func (s *EventSubscriber) Register(bus events.Bus) {
	bus.Subscribe(events.AssignmentCreated, s.HandleAssignment)
	bus.Subscribe(events.AssignmentTransferred, s.HandleAssignment)
	bus.Subscribe(events.ComplaintEscalated, s.HandleEscalation)
	bus.Subscribe(events.ComplaintStatusChanged, s.HandleStatusChange)
}

// HandleAssignment notifies the new assignee and the citizen
func (s *EventSubscriber) HandleAssignment(ctx context.Context, e events.Event) error {
	var errs []error
	if e.EmployeeUserID != "" {
		title := "New complaint assigned"
		if e.Type == events.AssignmentTransferred {
			title = "Complaint transferred to you"
		}
		errs = append(errs, s.dispatch(ctx, DispatchRequest{
			Target: UserTarget{UserID: e.EmployeeUserID},
			Title:  title,
			Body:   fmt.Sprintf("Complaint %s has been assigned to you.", e.ComplaintNumber),
			Type:   models.TypeAssignment,
			Data:   map[string]interface{}{"assignment_id": e.AssignmentID},
		}, e))
	}
	if e.CitizenID != "" && e.Type == events.AssignmentCreated {
		errs = append(errs, s.dispatch(ctx, DispatchRequest{
			Target: UserTarget{UserID: e.CitizenID},
			Title:  "Your complaint has been assigned",
			Body:   fmt.Sprintf("Complaint %s is now with an officer.", e.ComplaintNumber),
			Type:   models.TypeStatusUpdate,
		}, e))
	}
	return errors.Join(errs...)
}

// HandleEscalation notifies the assignee and the department's supervisors.
// Level 2 and above adds department heads; the top ladder level adds admins
// and is sent as critical.
func (s *EventSubscriber) HandleEscalation(ctx context.Context, e events.Event) error {
	notificationType := models.TypeEscalation
	topLevel := e.MaxLevel > 0 && e.Level >= e.MaxLevel
	if topLevel {
		notificationType = models.TypeCritical
	}
	title := fmt.Sprintf("Complaint escalated to level %d", e.Level)
	body := fmt.Sprintf("Complaint %s is %.1f hours past its SLA deadline.", e.ComplaintNumber, e.OverdueHours)
	data := map[string]interface{}{"level": e.Level, "overdue_hours": e.OverdueHours}

	targets := []Target{RoleTarget{Role: models.RoleSupervisor, DepartmentID: e.DepartmentID}}
	if e.EmployeeUserID != "" {
		targets = append([]Target{UserTarget{UserID: e.EmployeeUserID}}, targets...)
	}
	if e.Level >= 2 {
		targets = append(targets, RoleTarget{Role: models.RoleDepartmentHead, DepartmentID: e.DepartmentID})
	}
	if topLevel {
		targets = append(targets, RoleTarget{Role: models.RoleAdmin})
	}

	var errs []error
	for _, target := range targets {
		errs = append(errs, s.dispatch(ctx, DispatchRequest{
			Target: target,
			Title:  title,
			Body:   body,
			Data:   data,
			Type:   notificationType,
		}, e))
	}
	return errors.Join(errs...)
}

// HandleStatusChange tells the citizen about status changes they can act on
func (s *EventSubscriber) HandleStatusChange(ctx context.Context, e events.Event) error {
	if e.CitizenID == "" || !citizenVisibleStatuses[e.NewStatus] {
		return nil
	}
	return s.dispatch(ctx, DispatchRequest{
		Target: UserTarget{UserID: e.CitizenID},
		Title:  "Complaint status updated",
		Body:   fmt.Sprintf("Complaint %s is now %s.", e.ComplaintNumber, e.NewStatus),
		Type:   models.TypeStatusUpdate,
		Data:   map[string]interface{}{"old_status": e.OldStatus, "new_status": e.NewStatus},
	}, e)
}

func (s *EventSubscriber) dispatch(ctx context.Context, req DispatchRequest, e events.Event) error {
	req.ReferenceID = e.ComplaintID
	req.ReferenceType = "complaint"
	stats, err := s.notifications.Dispatch(ctx, req)
	if models.IsNotFound(err) {
		s.logger.Debug("notification recipient not found", zap.String("event", e.Type), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Debug("event notification dispatched",
		zap.String("event", e.Type),
		zap.String("complaint_id", e.ComplaintID),
		zap.Int("target_users", stats.TargetUsers),
		zap.Int("delivered", stats.Delivered))
	return nil
}
