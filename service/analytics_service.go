package service

import (
	"context"
	"math"
	"strconv"
	"time"

	"complaintengine/models"
	"complaintengine/repository"

	"go.uber.org/zap"
)

// periodDays maps an analytics period to its length in days
var periodDays = map[string]int{
	"day":   1,
	"week":  7,
	"month": 30,
}

// AnalyticsService aggregates complaints and escalations for reporting. It is read-only.
type AnalyticsService struct {
	complaints  *repository.ComplaintRepository
	escalations *repository.EscalationRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(
	complaints *repository.ComplaintRepository,
	escalations *repository.EscalationRepository,
	logger *zap.Logger,
) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		complaints:  complaints,
		escalations: escalations,
		logger:      logger.Named("analytics"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds a report over complaints submitted in the period ending today (UTC)
func (s *AnalyticsService) Generate(ctx context.Context, req *models.GenerateAnalyticsRequest) (*models.AnalyticsReport, error) {
	period := req.Period
	if period == "" {
		period = "week"
	}
	days, ok := periodDays[period]
	if !ok {
		return nil, models.NewValidationError("period", "period must be day, week or month")
	}

	now := s.now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	complaints, err := s.complaints.ListSubmittedBetween(ctx, from, to, repository.ComplaintFilter{
		ZoneID:       req.ZoneID,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return nil, err
	}
	records, err := s.escalations.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &models.AnalyticsReport{
		Period:            period,
		From:              from,
		To:                to,
		ZoneID:            req.ZoneID,
		DepartmentID:      req.DepartmentID,
		TotalComplaints:   len(complaints),
		ByStatus:          map[string]int{},
		ByPriority:        map[string]int{},
		ByEscalationLevel: map[string]int{},
		Trend:             make([]models.DailyCount, days),
	}
	for i := range report.Trend {
		report.Trend[i].Date = from.AddDate(0, 0, i).Format("2006-01-02")
	}
	dayIndex := func(t time.Time) (int, bool) {
		if t.Before(from) || !t.Before(to) {
			return 0, false
		}
		return int(t.Sub(from) / (24 * time.Hour)), true
	}

	inScope := make(map[string]bool, len(complaints))
	var resolvedCount int
	var resolvedHours float64
	for _, c := range complaints {
		inScope[c.ComplaintID] = true
		report.ByStatus[string(c.Status)]++
		report.ByPriority[string(c.Priority)]++
		report.ByEscalationLevel[strconv.Itoa(c.EscalationLevel)]++

		if i, ok := dayIndex(c.SubmittedAt); ok {
			report.Trend[i].Submitted++
		}
		if c.ResolvedAt.Valid {
			resolvedCount++
			resolvedHours += c.ResolvedAt.Time.Sub(c.SubmittedAt).Hours()
			if i, ok := dayIndex(c.ResolvedAt.Time); ok {
				report.Trend[i].Resolved++
			}
		}
		if breachedSLA(&c, now) {
			report.SLABreached++
		}
	}
	if resolvedCount > 0 {
		report.AverageResolutionHrs = math.Round(resolvedHours/float64(resolvedCount)*100) / 100
	}

	filtered := req.ZoneID != "" || req.DepartmentID != ""
	for _, rec := range records {
		if filtered && !inScope[rec.ComplaintID] {
			continue
		}
		if i, ok := dayIndex(rec.CreatedAt); ok {
			report.Trend[i].Escalated++
		}
	}

	s.logger.Debug("analytics generated",
		zap.String("period", period),
		zap.Int("complaints", report.TotalComplaints))
	return report, nil
}

// breachedSLA reports whether a complaint was resolved late or is still open past its deadline
func breachedSLA(c *models.Complaint, now time.Time) bool {
	if c.ResolvedAt.Valid {
		return c.ResolvedAt.Time.After(c.SLADeadline)
	}
	return c.Status.IsActive() && now.After(c.SLADeadline)
}
