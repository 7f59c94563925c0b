package service

import (
	"testing"
	"time"

	"complaintengine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAnalytics(t *testing.T) {
	f := newFixture(t)
	overdue := f.submit(models.PriorityUrgent)
	fixed := f.submit(models.PriorityMedium)

	f.addEmployee("e1", 0, 4.0, t0)
	f.clock.Set(t0.Add(2 * time.Hour))
	_, err := f.assignments.Assign(f.ctx, fixed, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)
	for _, status := range []models.ComplaintStatus{models.StatusInProgress, models.StatusResolved} {
		_, err := f.ledger.Transition(f.ctx, fixed, status, operator, "")
		require.NoError(t, err)
	}

	f.clock.Set(t0.Add(30 * time.Hour))
	_, err = f.escalations.EvaluateComplaint(f.ctx, overdue)
	require.NoError(t, err)

	report, err := f.analytics.Generate(f.ctx, &models.GenerateAnalyticsRequest{Period: "week"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), report.To)
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), report.From)
	assert.Equal(t, 2, report.TotalComplaints)
	assert.Equal(t, map[string]int{"submitted": 1, "resolved": 1}, report.ByStatus)
	assert.Equal(t, map[string]int{"urgent": 1, "medium": 1}, report.ByPriority)
	assert.Equal(t, map[string]int{"0": 1, "1": 1}, report.ByEscalationLevel)
	assert.Equal(t, 1, report.SLABreached)
	assert.Equal(t, 2.0, report.AverageResolutionHrs)

	require.Len(t, report.Trend, 7)
	assert.Equal(t, "2026-03-02", report.Trend[5].Date)
	assert.Equal(t, models.DailyCount{Date: "2026-03-02", Submitted: 2, Resolved: 1}, report.Trend[5])
	assert.Equal(t, models.DailyCount{Date: "2026-03-03", Escalated: 1}, report.Trend[6])
}

func TestGenerateAnalyticsFilters(t *testing.T) {
	f := newFixture(t)
	id := f.submit(models.PriorityUrgent)
	f.clock.Set(t0.Add(30 * time.Hour))
	_, err := f.escalations.EvaluateComplaint(f.ctx, id)
	require.NoError(t, err)

	report, err := f.analytics.Generate(f.ctx, &models.GenerateAnalyticsRequest{Period: "day", DepartmentID: "water_works"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalComplaints)
	require.Len(t, report.Trend, 1)
	assert.Equal(t, 0, report.Trend[0].Escalated)

	report, err = f.analytics.Generate(f.ctx, &models.GenerateAnalyticsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "week", report.Period)
	assert.Equal(t, 1, report.TotalComplaints)

	_, err = f.analytics.Generate(f.ctx, &models.GenerateAnalyticsRequest{Period: "year"})
	assert.True(t, models.IsValidation(err))
}
