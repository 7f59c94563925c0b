package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"complaintengine/events"
	"complaintengine/metrics"
	"complaintengine/models"
	"complaintengine/repository"

	"go.uber.org/zap"
)

// AssignmentMode selects how the owner of a complaint is chosen.
// It is implemented only by ManualAssignment and AutoAssignment.
type AssignmentMode interface {
	mode() string
}

// ManualAssignment assigns a specific employee
type ManualAssignment struct {
	EmployeeID string
}

// AutoAssignment picks the least loaded eligible employee
type AutoAssignment struct{}

func (ManualAssignment) mode() string { return "manual" }
func (AutoAssignment) mode() string   { return "auto" }

// AssignRequest is the input of Assign
type AssignRequest struct {
	Mode       AssignmentMode
	AssignedBy string
	Notes      string
}

// errWorkloadRace means the employee row changed between read and increment
var errWorkloadRace = errors.New("employee workload changed concurrently")

const defaultClaimRetries = 3

// AssignmentService selects owners for complaints and moves assignments
// through their lifecycle
type AssignmentService struct {
	db           *sql.DB
	complaints   *repository.ComplaintRepository
	employees    *repository.EmployeeRepository
	assignments  *repository.AssignmentRepository
	ledger       *LedgerService
	bus          events.Bus
	metrics      *metrics.Metrics
	logger       *zap.Logger
	claimRetries int
	now          func() time.Time
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	db *sql.DB,
	complaints *repository.ComplaintRepository,
	employees *repository.EmployeeRepository,
	assignments *repository.AssignmentRepository,
	ledger *LedgerService,
	bus events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
	claimRetries int,
) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if claimRetries <= 0 {
		claimRetries = defaultClaimRetries
	}
	return &AssignmentService{
		db:           db,
		complaints:   complaints,
		employees:    employees,
		assignments:  assignments,
		ledger:       ledger,
		bus:          bus,
		metrics:      m,
		logger:       logger.Named("assignment"),
		claimRetries: claimRetries,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RankCandidates orders employees by ascending workload, descending rating,
// earliest join date and finally employee ID.
func RankCandidates(employees []models.Employee) []models.Employee {
	ranked := make([]models.Employee, len(employees))
	copy(ranked, employees)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CurrentWorkload != b.CurrentWorkload {
			return a.CurrentWorkload < b.CurrentWorkload
		}
		if a.RatingAverage != b.RatingAverage {
			return a.RatingAverage > b.RatingAverage
		}
		if !a.JoinedDate.Equal(b.JoinedDate) {
			return a.JoinedDate.Before(b.JoinedDate)
		}
		return a.EmployeeID < b.EmployeeID
	})
	return ranked
}

// Assign claims complaintID for one employee. The owner guard, the workload
// increment, the assignment row and the ledger transition commit together.
func (s *AssignmentService) Assign(ctx context.Context, complaintID string, req AssignRequest) (*models.Assignment, error) {
	if req.Mode == nil {
		return nil, models.NewValidationError("mode", "assignment mode is required")
	}
	if manual, ok := req.Mode.(ManualAssignment); ok && manual.EmployeeID == "" {
		return nil, models.NewValidationError("employee_id", "employee is required for manual assignment")
	}
	if req.AssignedBy == "" {
		return nil, models.NewValidationError("assigned_by", "assignedBy is required")
	}

	var (
		assignment *models.Assignment
		complaint  *models.Complaint
		oldStatus  models.ComplaintStatus
		employee   *models.Employee
		err        error
	)
	for attempt := 1; attempt <= s.claimRetries; attempt++ {
		now := s.now()
		err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
			var txErr error
			complaint, oldStatus, employee, assignment, txErr = s.claim(ctx, tx, complaintID, req, now)
			return txErr
		})
		if !errors.Is(err, errWorkloadRace) {
			break
		}
		s.logger.Debug("workload race, retrying claim",
			zap.String("complaint_id", complaintID), zap.Int("attempt", attempt))
	}
	if errors.Is(err, errWorkloadRace) {
		err = models.NewConflictError(models.ConflictVersion, "employee workload changed concurrently, try again")
	}
	if err != nil {
		if models.IsConflict(err) {
			s.metrics.AssignmentConflict()
		}
		return nil, err
	}

	s.metrics.AssignmentMade(req.Mode.mode())
	s.logger.Info("complaint assigned",
		zap.String("complaint_id", complaintID),
		zap.String("assignment_id", assignment.AssignmentID),
		zap.String("employee_id", employee.EmployeeID),
		zap.String("mode", req.Mode.mode()))

	s.ledger.statusChanged(ctx, complaint, oldStatus, assignment.AssignedAt)
	s.publish(ctx, events.Event{
		Type:            events.AssignmentCreated,
		ComplaintID:     complaint.ComplaintID,
		ComplaintNumber: complaint.ComplaintNumber,
		CitizenID:       complaint.CitizenID,
		DepartmentID:    complaint.DepartmentID,
		AssignmentID:    assignment.AssignmentID,
		EmployeeUserID:  employee.UserID,
		OccurredAt:      assignment.AssignedAt,
	})
	return assignment, nil
}

func (s *AssignmentService) claim(
	ctx context.Context,
	tx *sql.Tx,
	complaintID string,
	req AssignRequest,
	now time.Time,
) (*models.Complaint, models.ComplaintStatus, *models.Employee, *models.Assignment, error) {
	complaints := s.complaints.WithTx(tx)
	employees := s.employees.WithTx(tx)

	c, err := complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, "", nil, nil, err
	}
	oldStatus := c.Status
	if c.AssignedEmployeeID.Valid {
		return nil, "", nil, nil, models.NewConflictError(models.ConflictAlreadyAssigned,
			fmt.Sprintf("complaint %s is already assigned", complaintID))
	}
	if c.Status != models.StatusSubmitted && c.Status != models.StatusUnderReview {
		return nil, "", nil, nil, models.NewValidationError("status",
			fmt.Sprintf("complaint in status %s cannot be assigned", c.Status))
	}

	employee, err := s.pickEmployee(ctx, employees, c, req.Mode)
	if err != nil {
		return nil, "", nil, nil, err
	}

	claimed, err := complaints.ClaimOwner(ctx, c.ComplaintID, employee.EmployeeID, now)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if !claimed {
		return nil, "", nil, nil, models.NewConflictError(models.ConflictAlreadyAssigned,
			fmt.Sprintf("complaint %s is already assigned", complaintID))
	}
	c.AssignedEmployeeID = sql.NullString{String: employee.EmployeeID, Valid: true}

	ok, err := employees.IncrementWorkload(ctx, employee.EmployeeID, employee.Version)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if !ok {
		return nil, "", nil, nil, errWorkloadRace
	}

	assignment := &models.Assignment{
		ComplaintID: c.ComplaintID,
		EmployeeID:  employee.EmployeeID,
		Status:      models.AssignmentPending,
		AssignedBy:  req.AssignedBy,
		Mode:        req.Mode.mode(),
		Notes:       sql.NullString{String: req.Notes, Valid: req.Notes != ""},
		AssignedAt:  now,
	}
	if err := s.assignments.WithTx(tx).CreateAssignment(ctx, assignment); err != nil {
		return nil, "", nil, nil, err
	}

	actor := Actor{ID: req.AssignedBy, Type: models.ActorOperator}
	if c.Status == models.StatusSubmitted {
		if err := s.ledger.apply(ctx, complaints, c, models.StatusUnderReview, actor, "Picked up for assignment", now); err != nil {
			return nil, "", nil, nil, err
		}
	}
	notes := fmt.Sprintf("Assigned to employee %s (%s)", employee.EmployeeID, req.Mode.mode())
	if err := s.ledger.apply(ctx, complaints, c, models.StatusAssigned, actor, notes, now); err != nil {
		return nil, "", nil, nil, err
	}
	return c, oldStatus, employee, assignment, nil
}

func (s *AssignmentService) pickEmployee(
	ctx context.Context,
	employees *repository.EmployeeRepository,
	c *models.Complaint,
	mode AssignmentMode,
) (*models.Employee, error) {
	switch m := mode.(type) {
	case ManualAssignment:
		employee, err := employees.GetEmployeeByID(ctx, m.EmployeeID)
		if err != nil {
			return nil, err
		}
		if employee.Status != models.EmployeeActive {
			return nil, models.NewValidationError("employee_id",
				fmt.Sprintf("employee %s is %s", employee.EmployeeID, employee.Status))
		}
		return employee, nil
	case AutoAssignment:
		pool, err := employees.ListEligible(ctx, c.DepartmentID, c.ZoneID)
		if err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			return nil, models.NewNotFoundError("eligible employee", c.DepartmentID)
		}
		best := RankCandidates(pool)[0]
		return &best, nil
	default:
		return nil, models.NewValidationError("mode", "unknown assignment mode")
	}
}

// Transfer moves a live assignment to another employee. The old row is marked
// superseded and a new pending row is created for the destination.
func (s *AssignmentService) Transfer(ctx context.Context, assignmentID, toEmployeeID, by, notes string) (*models.Assignment, error) {
	if toEmployeeID == "" {
		return nil, models.NewValidationError("employee_id", "destination employee is required")
	}

	var (
		next       *models.Assignment
		previous   *models.Assignment
		complaint  *models.Complaint
		destUserID string
		err        error
	)
	for attempt := 1; attempt <= s.claimRetries; attempt++ {
		now := s.now()
		err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
			var txErr error
			previous, next, complaint, destUserID, txErr = s.transfer(ctx, tx, assignmentID, toEmployeeID, by, notes, now)
			return txErr
		})
		if !errors.Is(err, errWorkloadRace) {
			break
		}
	}
	if errors.Is(err, errWorkloadRace) {
		err = models.NewConflictError(models.ConflictVersion, "employee workload changed concurrently, try again")
	}
	if err != nil {
		if models.IsConflict(err) {
			s.metrics.AssignmentConflict()
		}
		return nil, err
	}

	s.metrics.AssignmentMade("transfer")
	s.logger.Info("assignment transferred",
		zap.String("complaint_id", next.ComplaintID),
		zap.String("from_assignment", previous.AssignmentID),
		zap.String("to_assignment", next.AssignmentID),
		zap.String("from_employee", previous.EmployeeID),
		zap.String("to_employee", next.EmployeeID))

	s.publish(ctx, events.Event{
		Type:               events.AssignmentTransferred,
		ComplaintID:        complaint.ComplaintID,
		ComplaintNumber:    complaint.ComplaintNumber,
		CitizenID:          complaint.CitizenID,
		DepartmentID:       complaint.DepartmentID,
		AssignmentID:       next.AssignmentID,
		EmployeeUserID:     destUserID,
		PreviousEmployeeID: previous.EmployeeID,
		OccurredAt:         next.AssignedAt,
	})
	return next, nil
}

func (s *AssignmentService) transfer(
	ctx context.Context,
	tx *sql.Tx,
	assignmentID, toEmployeeID, by, notes string,
	now time.Time,
) (*models.Assignment, *models.Assignment, *models.Complaint, string, error) {
	assignments := s.assignments.WithTx(tx)
	employees := s.employees.WithTx(tx)
	complaints := s.complaints.WithTx(tx)

	old, err := assignments.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, nil, nil, "", err
	}
	if !old.Status.HoldsWorkload() {
		return nil, nil, nil, "", models.NewValidationError("assignment_id",
			fmt.Sprintf("assignment in status %s cannot be transferred", old.Status))
	}
	if old.EmployeeID == toEmployeeID {
		return nil, nil, nil, "", models.NewValidationError("employee_id", "assignment already belongs to this employee")
	}

	dest, err := employees.GetEmployeeByID(ctx, toEmployeeID)
	if err != nil {
		return nil, nil, nil, "", err
	}
	if dest.Status != models.EmployeeActive {
		return nil, nil, nil, "", models.NewValidationError("employee_id",
			fmt.Sprintf("employee %s is %s", dest.EmployeeID, dest.Status))
	}
	source, err := employees.GetEmployeeByID(ctx, old.EmployeeID)
	if err != nil {
		return nil, nil, nil, "", err
	}

	next := &models.Assignment{
		ComplaintID: old.ComplaintID,
		EmployeeID:  dest.EmployeeID,
		Status:      models.AssignmentPending,
		AssignedBy:  by,
		Mode:        "transfer",
		Notes:       sql.NullString{String: notes, Valid: notes != ""},
		AssignedAt:  now,
	}
	if err := assignments.CreateAssignment(ctx, next); err != nil {
		return nil, nil, nil, "", err
	}

	ok, err := assignments.MarkSuperseded(ctx, old.AssignmentID, next.AssignmentID, now)
	if err != nil {
		return nil, nil, nil, "", err
	}
	if !ok {
		return nil, nil, nil, "", models.NewConflictError(models.ConflictVersion, "assignment changed concurrently")
	}

	if ok, err = employees.DecrementWorkload(ctx, source.EmployeeID, source.Version); err != nil {
		return nil, nil, nil, "", err
	} else if !ok {
		return nil, nil, nil, "", errWorkloadRace
	}
	if ok, err = employees.IncrementWorkload(ctx, dest.EmployeeID, dest.Version); err != nil {
		return nil, nil, nil, "", err
	} else if !ok {
		return nil, nil, nil, "", errWorkloadRace
	}

	if ok, err = complaints.RepointOwner(ctx, old.ComplaintID, source.EmployeeID, dest.EmployeeID, now); err != nil {
		return nil, nil, nil, "", err
	} else if !ok {
		return nil, nil, nil, "", models.NewConflictError(models.ConflictVersion, "complaint owner changed concurrently")
	}

	complaint, err := complaints.GetComplaintByID(ctx, old.ComplaintID)
	if err != nil {
		return nil, nil, nil, "", err
	}
	return old, next, complaint, dest.UserID, nil
}

// assignmentTransitions is the assignment lifecycle allow-list
var assignmentTransitions = map[models.AssignmentStatus][]models.AssignmentStatus{
	models.AssignmentPending:    {models.AssignmentAccepted, models.AssignmentRejected},
	models.AssignmentAccepted:   {models.AssignmentInProgress},
	models.AssignmentInProgress: {models.AssignmentCompleted},
	models.AssignmentCompleted:  {models.AssignmentVerified},
}

func isValidAssignmentTransition(from, to models.AssignmentStatus) bool {
	for _, status := range assignmentTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// complaintStatusFor is the complaint transition driven by an assignment change
var complaintStatusFor = map[models.AssignmentStatus]models.ComplaintStatus{
	models.AssignmentRejected:   models.StatusUnderReview,
	models.AssignmentInProgress: models.StatusInProgress,
	models.AssignmentCompleted:  models.StatusResolved,
	models.AssignmentVerified:   models.StatusClosed,
}

// UpdateAssignmentStatus moves an assignment one step through its lifecycle
// and applies the matching complaint transition.
func (s *AssignmentService) UpdateAssignmentStatus(
	ctx context.Context,
	assignmentID string,
	newStatus models.AssignmentStatus,
	actor Actor,
	notes string,
) (*models.Assignment, error) {
	var (
		assignment *models.Assignment
		complaint  *models.Complaint
		oldStatus  models.ComplaintStatus
		err        error
	)
	for attempt := 1; attempt <= s.claimRetries; attempt++ {
		now := s.now()
		err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
			var txErr error
			assignment, complaint, oldStatus, txErr = s.updateStatus(ctx, tx, assignmentID, newStatus, actor, notes, now)
			return txErr
		})
		if !errors.Is(err, errWorkloadRace) {
			break
		}
	}
	if errors.Is(err, errWorkloadRace) {
		err = models.NewConflictError(models.ConflictVersion, "employee workload changed concurrently, try again")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment status updated",
		zap.String("assignment_id", assignmentID),
		zap.String("status", string(newStatus)))
	if complaint != nil {
		s.ledger.statusChanged(ctx, complaint, oldStatus, s.now())
	}
	return assignment, nil
}

func (s *AssignmentService) updateStatus(
	ctx context.Context,
	tx *sql.Tx,
	assignmentID string,
	newStatus models.AssignmentStatus,
	actor Actor,
	notes string,
	now time.Time,
) (*models.Assignment, *models.Complaint, models.ComplaintStatus, error) {
	assignments := s.assignments.WithTx(tx)
	employees := s.employees.WithTx(tx)
	complaints := s.complaints.WithTx(tx)

	a, err := assignments.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, nil, "", err
	}
	if !isValidAssignmentTransition(a.Status, newStatus) {
		return nil, nil, "", models.NewValidationError("status",
			fmt.Sprintf("invalid assignment transition from %s to %s", a.Status, newStatus))
	}

	ok, err := assignments.UpdateStatus(ctx, a.AssignmentID, a.Status, newStatus, now)
	if err != nil {
		return nil, nil, "", err
	}
	if !ok {
		return nil, nil, "", models.NewConflictError(models.ConflictVersion, "assignment changed concurrently")
	}

	if a.Status.HoldsWorkload() && !newStatus.HoldsWorkload() {
		employee, err := employees.GetEmployeeByID(ctx, a.EmployeeID)
		if err != nil {
			return nil, nil, "", err
		}
		ok, err := employees.DecrementWorkload(ctx, employee.EmployeeID, employee.Version)
		if err != nil {
			return nil, nil, "", err
		}
		if !ok {
			return nil, nil, "", errWorkloadRace
		}
	}

	var complaint *models.Complaint
	var oldStatus models.ComplaintStatus
	if target, ok := complaintStatusFor[newStatus]; ok {
		complaint, err = complaints.GetComplaintByID(ctx, a.ComplaintID)
		if err != nil {
			return nil, nil, "", err
		}
		oldStatus = complaint.Status
		if newStatus == models.AssignmentRejected {
			if err := complaints.ClearOwner(ctx, complaint.ComplaintID, a.EmployeeID, now); err != nil {
				return nil, nil, "", err
			}
			complaint.AssignedEmployeeID = sql.NullString{}
		}
		if notes == "" {
			notes = fmt.Sprintf("Assignment %s", newStatus)
		}
		if err := s.ledger.apply(ctx, complaints, complaint, target, actor, notes, now); err != nil {
			return nil, nil, "", err
		}
	}

	updated, err := assignments.GetAssignmentByID(ctx, a.AssignmentID)
	if err != nil {
		return nil, nil, "", err
	}
	return updated, complaint, oldStatus, nil
}

// GetAssignments returns every assignment row of a complaint, oldest first
func (s *AssignmentService) GetAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.assignments.GetAssignmentsByComplaint(ctx, complaintID)
}

func (s *AssignmentService) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", e.Type), zap.Error(err))
	}
}
