package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"complaintengine/metrics"
	"complaintengine/models"
	"complaintengine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ComplaintService handles complaint intake
type ComplaintService struct {
	db         *sql.DB
	complaints *repository.ComplaintRepository
	categories *repository.CategoryRepository
	resolver   *SLAPolicyResolver
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	intake *repository.AbusePreventionRepository
	limits IntakeLimits
}

// IntakeLimits bounds what one citizen may submit. Zero values disable a check.
type IntakeLimits struct {
	MaxPerDay       int
	DuplicateWindow time.Duration
}

// NewComplaintService creates a new complaint service
func NewComplaintService(
	db *sql.DB,
	complaints *repository.ComplaintRepository,
	categories *repository.CategoryRepository,
	resolver *SLAPolicyResolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ComplaintService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplaintService{
		db:         db,
		complaints: complaints,
		categories: categories,
		resolver:   resolver,
		metrics:    m,
		logger:     logger.Named("complaint"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithIntakeLimits enables the per-citizen intake checks
func (s *ComplaintService) WithIntakeLimits(intake *repository.AbusePreventionRepository, limits IntakeLimits) *ComplaintService {
	s.intake = intake
	s.limits = limits
	return s
}

// checkIntake rejects a citizen over the daily cap or repeating a recent complaint
func (s *ComplaintService) checkIntake(ctx context.Context, citizenID string, req *models.CreateComplaintRequest, now time.Time) error {
	if s.intake == nil {
		return nil
	}
	if s.limits.MaxPerDay > 0 {
		count, err := s.intake.CountComplaintsByCitizenSince(ctx, citizenID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if count >= s.limits.MaxPerDay {
			s.logger.Warn("complaint intake limit reached",
				zap.String("citizen_id", citizenID),
				zap.Int("count", count))
			return models.NewConflictError(models.ConflictIntakeLimit,
				fmt.Sprintf("at most %d complaints may be submitted per day", s.limits.MaxPerDay))
		}
	}
	if s.limits.DuplicateWindow > 0 {
		number, found, err := s.intake.FindRecentDuplicate(ctx, citizenID, req.CategoryID, req.Title, now.Add(-s.limits.DuplicateWindow))
		if err != nil {
			return err
		}
		if found {
			return models.NewConflictError(models.ConflictDuplicate,
				fmt.Sprintf("complaint %s with the same title was already submitted", number))
		}
	}
	return nil
}

// CreateComplaint creates a submitted complaint with its SLA deadline and initial history row.
func (s *ComplaintService) CreateComplaint(ctx context.Context, citizenID string, req *models.CreateComplaintRequest) (*models.CreateComplaintResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if citizenID == "" {
		return nil, models.NewValidationError("citizen_id", "citizen is required")
	}
	if req.Title == "" {
		return nil, models.NewValidationError("title", "title is required")
	}
	if req.CategoryID == "" {
		return nil, models.NewValidationError("category_id", "category is required")
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		p, ok := models.ParsePriority(req.Priority)
		if !ok {
			return nil, models.NewValidationError("priority", "priority must be one of low, medium, high, urgent")
		}
		priority = p
	}

	departmentID, err := s.categories.GetDepartmentForCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	now := s.now().Truncate(time.Second)
	if err := s.checkIntake(ctx, citizenID, req, now); err != nil {
		return nil, err
	}
	complaint := &models.Complaint{
		ComplaintID:     uuid.New().String(),
		ComplaintNumber: repository.GenerateComplaintNumber(now),
		CitizenID:       citizenID,
		Title:           req.Title,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		DepartmentID:    departmentID,
		Priority:        priority,
		Status:          models.StatusSubmitted,
		SubmittedAt:     now,
		SLADeadline:     s.resolver.Deadline(now, req.CategoryID, priority),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ZoneID != nil && *req.ZoneID != "" {
		complaint.ZoneID = sql.NullString{String: *req.ZoneID, Valid: true}
	}

	err = repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		complaints := s.complaints.WithTx(tx)
		if err := complaints.CreateComplaint(ctx, complaint); err != nil {
			return err
		}
		return complaints.CreateStatusHistory(ctx, &models.ComplaintStatusHistory{
			ComplaintID:   complaint.ComplaintID,
			NewStatus:     models.StatusSubmitted,
			ChangedBy:     citizenID,
			ChangedByType: models.ActorCitizen,
			Notes:         sql.NullString{String: "Complaint submitted", Valid: true},
			Version:       complaint.Version,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ComplaintCreated(string(priority))
	s.logger.Info("complaint created",
		zap.String("complaint_id", complaint.ComplaintID),
		zap.String("complaint_number", complaint.ComplaintNumber),
		zap.String("category", complaint.CategoryID),
		zap.String("priority", string(priority)),
		zap.Time("sla_deadline", complaint.SLADeadline))

	return &models.CreateComplaintResponse{
		ComplaintID:     complaint.ComplaintID,
		ComplaintNumber: complaint.ComplaintNumber,
		Status:          complaint.Status,
		SLADeadline:     complaint.SLADeadline,
		CreatedAt:       complaint.CreatedAt,
	}, nil
}

// GetComplaint returns one complaint
func (s *ComplaintService) GetComplaint(ctx context.Context, complaintID string) (*models.Complaint, error) {
	return s.complaints.GetComplaintByID(ctx, complaintID)
}
