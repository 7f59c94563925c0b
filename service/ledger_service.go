package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"complaintengine/events"
	"complaintengine/metrics"
	"complaintengine/models"
	"complaintengine/repository"

	"go.uber.org/zap"
)

// Actor identifies who performed a change
type Actor struct {
	ID   string
	Type models.ActorType
}

// SystemActor is used for changes made by background workers
var SystemActor = Actor{ID: "system", Type: models.ActorSystem}

// allowedTransitions is the complaint status allow-list. Reopen is separate.
var allowedTransitions = map[models.ComplaintStatus][]models.ComplaintStatus{
	models.StatusDraft:       {models.StatusSubmitted},
	models.StatusSubmitted:   {models.StatusUnderReview, models.StatusRejected},
	models.StatusUnderReview: {models.StatusAssigned, models.StatusRejected},
	models.StatusAssigned:    {models.StatusInProgress, models.StatusUnderReview, models.StatusRejected},
	models.StatusInProgress:  {models.StatusOnHold, models.StatusResolved},
	models.StatusOnHold:      {models.StatusInProgress},
	models.StatusResolved:    {models.StatusClosed},
	models.StatusClosed:      {}, // Terminal state
	models.StatusRejected:    {}, // Terminal state
}

// reopenable statuses may go back to under_review through Reopen
var reopenable = map[models.ComplaintStatus]bool{
	models.StatusResolved: true,
	models.StatusClosed:   true,
	models.StatusRejected: true,
}

// ownedStatuses are the complaint statuses backed by a live assignment
var ownedStatuses = map[models.ComplaintStatus]bool{
	models.StatusAssigned:   true,
	models.StatusInProgress: true,
	models.StatusOnHold:     true,
}

// IsValidStatusTransition reports whether old → new is on the allow-list
func IsValidStatusTransition(oldStatus, newStatus models.ComplaintStatus) bool {
	for _, status := range allowedTransitions[oldStatus] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// ParseComplaintStatus validates a status coming from a request
func ParseComplaintStatus(value string) (models.ComplaintStatus, bool) {
	status := models.ComplaintStatus(value)
	_, ok := allowedTransitions[status]
	return status, ok
}

// LedgerService owns complaint status changes. Every change is guarded by the
// complaint version and appends exactly one history row in the same transaction.
type LedgerService struct {
	db          *sql.DB
	complaints  *repository.ComplaintRepository
	assignments *repository.AssignmentRepository
	employees   *repository.EmployeeRepository
	resolver   *SLAPolicyResolver
	bus        events.Bus
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *sql.DB,
	complaints *repository.ComplaintRepository,
	assignments *repository.AssignmentRepository,
	employees *repository.EmployeeRepository,
	resolver *SLAPolicyResolver,
	bus events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		db:          db,
		complaints:  complaints,
		assignments: assignments,
		employees:   employees,
		resolver:   resolver,
		bus:        bus,
		metrics:    m,
		logger:     logger.Named("ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves a complaint to newStatus. Entering assigned is reserved
// to the assignment service. Leaving the owned statuses releases the live
// assignment in the same transaction: completed on resolution, superseded
// (and the owner cleared) otherwise.
func (s *LedgerService) Transition(
	ctx context.Context,
	complaintID string,
	newStatus models.ComplaintStatus,
	actor Actor,
	notes string,
) (*models.Complaint, error) {
	if newStatus == models.StatusAssigned {
		return nil, models.NewValidationError("status", "complaints are assigned through assign-complaint")
	}

	var complaint *models.Complaint
	var oldStatus models.ComplaintStatus
	now := s.now()

	err := s.runInTx(ctx, func(tx *sql.Tx) error {
		complaints := s.complaints.WithTx(tx)
		c, err := complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		oldStatus = c.Status
		if err := s.apply(ctx, complaints, c, newStatus, actor, notes, now); err != nil {
			return err
		}
		if ownedStatuses[oldStatus] && !ownedStatuses[newStatus] {
			if err := s.releaseAssignment(ctx, tx, c, newStatus == models.StatusResolved, now); err != nil {
				return err
			}
		}
		complaint = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, complaint, oldStatus, now)
	return complaint, nil
}

// runInTx runs fn in a transaction and retries it when a workload update lost a race
func (s *LedgerService) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= defaultClaimRetries; attempt++ {
		err = repository.RunInTx(ctx, s.db, fn)
		if !errors.Is(err, errWorkloadRace) {
			return err
		}
	}
	return models.NewConflictError(models.ConflictVersion, "employee workload changed concurrently, try again")
}

// releaseAssignment closes the complaint's live assignment, if any, and gives
// the employee's workload back. Unless completed, the owner is cleared.
func (s *LedgerService) releaseAssignment(ctx context.Context, tx *sql.Tx, c *models.Complaint, completed bool, now time.Time) error {
	assignments := s.assignments.WithTx(tx)
	employees := s.employees.WithTx(tx)

	a, err := assignments.GetLiveAssignment(ctx, c.ComplaintID)
	if err != nil || a == nil {
		return err
	}
	to := models.AssignmentSuperseded
	if completed {
		to = models.AssignmentCompleted
	}
	ok, err := assignments.Release(ctx, a.AssignmentID, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewConflictError(models.ConflictVersion, "assignment changed concurrently")
	}

	employee, err := employees.GetEmployeeByID(ctx, a.EmployeeID)
	if err != nil {
		return err
	}
	if ok, err = employees.DecrementWorkload(ctx, employee.EmployeeID, employee.Version); err != nil {
		return err
	} else if !ok {
		return errWorkloadRace
	}

	if !completed {
		if err := s.complaints.WithTx(tx).ClearOwner(ctx, c.ComplaintID, a.EmployeeID, now); err != nil {
			return err
		}
		c.AssignedEmployeeID = sql.NullString{}
	}
	s.logger.Info("assignment released by status change",
		zap.String("complaint_id", c.ComplaintID),
		zap.String("assignment_id", a.AssignmentID),
		zap.String("assignment_status", string(to)))
	return nil
}

// apply validates and writes one transition using a transaction-bound repository.
// c is updated in place.
func (s *LedgerService) apply(
	ctx context.Context,
	complaints *repository.ComplaintRepository,
	c *models.Complaint,
	newStatus models.ComplaintStatus,
	actor Actor,
	notes string,
	now time.Time,
) error {
	oldStatus := c.Status
	if !IsValidStatusTransition(oldStatus, newStatus) {
		return models.NewValidationError("status",
			fmt.Sprintf("invalid status transition from %s to %s", oldStatus, newStatus))
	}

	ok, err := complaints.UpdateStatus(ctx, c, newStatus, now)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewConflictError(models.ConflictVersion, "complaint was modified concurrently")
	}

	return complaints.CreateStatusHistory(ctx, &models.ComplaintStatusHistory{
		ComplaintID:   c.ComplaintID,
		OldStatus:     sql.NullString{String: string(oldStatus), Valid: true},
		NewStatus:     newStatus,
		ChangedBy:     actor.ID,
		ChangedByType: actor.Type,
		Notes:         sql.NullString{String: notes, Valid: notes != ""},
		Version:       c.Version,
		CreatedAt:     now,
	})
}

// Reopen sends a resolved, closed or rejected complaint back to under_review.
// The escalation level restarts at zero in a new escalation cycle, the owner
// is cleared along with any assignment still holding workload, and the SLA
// deadline is recomputed from the reopen time.
func (s *LedgerService) Reopen(ctx context.Context, complaintID string, actor Actor, notes string) (*models.Complaint, error) {
	var complaint *models.Complaint
	var oldStatus models.ComplaintStatus
	now := s.now()

	err := s.runInTx(ctx, func(tx *sql.Tx) error {
		complaints := s.complaints.WithTx(tx)
		c, err := complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		oldStatus = c.Status
		if !reopenable[c.Status] {
			return models.NewValidationError("status", fmt.Sprintf("cannot reopen a complaint in status %s", c.Status))
		}
		if err := s.releaseAssignment(ctx, tx, c, false, now); err != nil {
			return err
		}

		deadline := s.resolver.Deadline(now, c.CategoryID, c.Priority)
		ok, err := complaints.Reopen(ctx, c, deadline, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError(models.ConflictVersion, "complaint was modified concurrently")
		}

		if notes == "" {
			notes = "reopened"
		}
		if err := complaints.CreateStatusHistory(ctx, &models.ComplaintStatusHistory{
			ComplaintID:   c.ComplaintID,
			OldStatus:     sql.NullString{String: string(oldStatus), Valid: true},
			NewStatus:     c.Status,
			ChangedBy:     actor.ID,
			ChangedByType: actor.Type,
			Notes:         sql.NullString{String: notes, Valid: true},
			Version:       c.Version,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		complaint = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("complaint reopened",
		zap.String("complaint_id", complaint.ComplaintID),
		zap.String("from", string(oldStatus)),
		zap.Int("escalation_cycle", complaint.EscalationCycle),
		zap.Time("sla_deadline", complaint.SLADeadline))
	s.statusChanged(ctx, complaint, oldStatus, now)
	return complaint, nil
}

// Timeline returns the status history of a complaint, oldest first
func (s *LedgerService) Timeline(ctx context.Context, complaintID string) ([]models.ComplaintStatusHistory, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.complaints.GetStatusHistory(ctx, complaintID)
}

func (s *LedgerService) statusChanged(ctx context.Context, c *models.Complaint, oldStatus models.ComplaintStatus, at time.Time) {
	s.metrics.StatusChanged(string(c.Status))
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, events.Event{
		Type:            events.ComplaintStatusChanged,
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		CitizenID:       c.CitizenID,
		DepartmentID:    c.DepartmentID,
		OldStatus:       string(oldStatus),
		NewStatus:       string(c.Status),
		OccurredAt:      at,
	})
	if err != nil {
		s.logger.Warn("failed to publish status change", zap.String("complaint_id", c.ComplaintID), zap.Error(err))
	}
}
