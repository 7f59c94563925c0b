package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"complaintengine/events"
	"complaintengine/metrics"
	"complaintengine/models"
	"complaintengine/repository"

	"go.uber.org/zap"
)

const defaultSweepLimit = 1000

// EscalationService is the escalation monitor. It raises the escalation level
// of active complaints whose SLA deadline has passed.
type EscalationService struct {
	db          *sql.DB
	complaints  *repository.ComplaintRepository
	employees   *repository.EmployeeRepository
	escalations *repository.EscalationRepository
	resolver    *SLAPolicyResolver
	bus         events.Bus
	metrics     *metrics.Metrics
	logger      *zap.Logger
	sweepLimit  int
	now         func() time.Time
}

// NewEscalationService creates a new escalation service
func NewEscalationService(
	db *sql.DB,
	complaints *repository.ComplaintRepository,
	employees *repository.EmployeeRepository,
	escalations *repository.EscalationRepository,
	resolver *SLAPolicyResolver,
	bus events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		db:          db,
		complaints:  complaints,
		employees:   employees,
		escalations: escalations,
		resolver:    resolver,
		bus:         bus,
		metrics:     m,
		logger:      logger.Named("escalation"),
		sweepLimit:  defaultSweepLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OverdueHours returns max(0, now - deadline) in hours
func OverdueHours(deadline, now time.Time) float64 {
	return math.Max(0, now.Sub(deadline).Hours())
}

// Sweep evaluates every overdue active complaint once, reading candidates in
// keyset pages of sweepLimit. A failure on one complaint is logged and counted
// and never stops the sweep.
func (s *EscalationService) Sweep(ctx context.Context) (*models.SweepResult, error) {
	clock := time.Now()
	started := s.now()
	result := &models.SweepResult{
		StartedAt: started,
		Results:   []models.EscalationResult{},
	}

	var cursor repository.OverdueCursor
	for {
		page, err := s.complaints.ListOverdueActive(ctx, started, cursor, s.sweepLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load escalation candidates: %w", err)
		}
		for _, candidate := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Evaluated++
			res, err := s.EvaluateComplaint(ctx, candidate.ComplaintID)
			if err != nil {
				result.Failed++
				s.logger.Error("skipping complaint", zap.String("complaint_id", candidate.ComplaintID), zap.Error(err))
				continue
			}
			if res.Escalated {
				result.Escalated++
			}
			result.Results = append(result.Results, *res)
		}
		if len(page) == 0 || len(page) < s.sweepLimit {
			break
		}
		cursor = page[len(page)-1]
	}

	result.Duration = time.Since(clock)
	s.metrics.SweepCompleted(result.Duration, result.Failed)
	s.logger.Info("escalation sweep completed",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// EvaluateComplaint re-checks one complaint against its escalation ladder.
// Complaints that left the active set, or are already at the target level,
// are returned with Escalated=false.
func (s *EscalationService) EvaluateComplaint(ctx context.Context, complaintID string) (*models.EscalationResult, error) {
	now := s.now()
	result := &models.EscalationResult{ComplaintID: complaintID, ProcessedAt: now}
	var (
		complaint *models.Complaint
		policy    Policy
		userID    string
	)

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		complaints := s.complaints.WithTx(tx)
		c, err := complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		complaint = c
		result.FromLevel = c.EscalationLevel
		result.Level = c.EscalationLevel

		if !c.Status.IsActive() {
			result.Reason = fmt.Sprintf("status %s is not active", c.Status)
			return nil
		}

		policy = s.resolver.Resolve(c.CategoryID, c.Priority)
		result.OverdueHours = OverdueHours(c.SLADeadline, now)
		target := policy.Ladder.LevelFor(result.OverdueHours)
		if target <= c.EscalationLevel {
			result.Reason = "no new threshold reached"
			return nil
		}

		raised, err := complaints.RaiseEscalationLevel(ctx, c.ComplaintID, target, now)
		if err != nil {
			return err
		}
		if !raised {
			result.Reason = "already escalated concurrently"
			return nil
		}

		record := &models.EscalationRecord{
			ComplaintID:  c.ComplaintID,
			Cycle:        c.EscalationCycle,
			Level:        target,
			FromLevel:    c.EscalationLevel,
			Reason:       models.ReasonSLABreach,
			OverdueHours: result.OverdueHours,
			CreatedAt:    now,
		}
		if err := s.escalations.WithTx(tx).CreateEscalationRecord(ctx, record); err != nil {
			return err
		}

		if c.AssignedEmployeeID.Valid {
			employee, err := s.employees.WithTx(tx).GetEmployeeByID(ctx, c.AssignedEmployeeID.String)
			if err != nil && !models.IsNotFound(err) {
				return err
			}
			if employee != nil {
				userID = employee.UserID
			}
		}

		c.EscalationLevel = target
		result.Escalated = true
		result.Level = target
		result.EscalationID = record.EscalationID
		result.Reason = string(models.ReasonSLABreach)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Escalated {
		return result, nil
	}

	s.metrics.Escalated(result.Level)
	s.logger.Info("complaint escalated",
		zap.String("complaint_id", complaint.ComplaintID),
		zap.Int("from_level", result.FromLevel),
		zap.Int("level", result.Level),
		zap.Float64("overdue_hours", result.OverdueHours))

	if s.bus != nil {
		err := s.bus.Publish(ctx, events.Event{
			Type:            events.ComplaintEscalated,
			ComplaintID:     complaint.ComplaintID,
			ComplaintNumber: complaint.ComplaintNumber,
			CitizenID:       complaint.CitizenID,
			DepartmentID:    complaint.DepartmentID,
			EmployeeUserID:  userID,
			FromLevel:       result.FromLevel,
			Level:           result.Level,
			MaxLevel:        policy.Ladder.MaxLevel(),
			OverdueHours:    result.OverdueHours,
			OccurredAt:      now,
		})
		if err != nil {
			s.logger.Warn("failed to publish escalation", zap.String("complaint_id", complaint.ComplaintID), zap.Error(err))
		}
	}
	return result, nil
}

// GetEscalations returns the escalation records of a complaint
func (s *EscalationService) GetEscalations(ctx context.Context, complaintID string) ([]models.EscalationRecord, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.escalations.GetEscalationsByComplaint(ctx, complaintID)
}
