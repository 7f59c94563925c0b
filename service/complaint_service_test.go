package service

import (
	"testing"
	"time"

	"complaintengine/models"
	"complaintengine/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateComplaint(t *testing.T) {
	f := newFixture(t)
	zone := "ward-7"
	resp, err := f.complaints.CreateComplaint(f.ctx, "citizen-1", &models.CreateComplaintRequest{
		Title:      "  Broken road  ",
		CategoryID: "road_damage",
		ZoneID:     &zone,
		Priority:   "urgent",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, resp.Status)
	assert.Contains(t, resp.ComplaintNumber, "COMP-20260302-")
	assert.Equal(t, t0.Add(24*time.Hour), resp.SLADeadline)

	c, err := f.complaints.GetComplaint(f.ctx, resp.ComplaintID)
	require.NoError(t, err)
	assert.Equal(t, "Broken road", c.Title)
	assert.Equal(t, "public_works", c.DepartmentID)
	assert.Equal(t, "ward-7", c.ZoneID.String)
	assert.Equal(t, models.PriorityUrgent, c.Priority)
	assert.Equal(t, 0, c.EscalationLevel)
}

func TestCreateComplaintDefaults(t *testing.T) {
	f := newFixture(t)
	resp, err := f.complaints.CreateComplaint(f.ctx, "citizen-1", &models.CreateComplaintRequest{
		Title:      "Pothole",
		CategoryID: "road_damage",
	})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(72*time.Hour), resp.SLADeadline)
	assert.Equal(t, models.PriorityMedium, f.complaint(resp.ComplaintID).Priority)
}

func TestCreateComplaintValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		citizen string
		req     models.CreateComplaintRequest
	}{
		{"no citizen", "", models.CreateComplaintRequest{Title: "x", CategoryID: "road_damage"}},
		{"no title", "c1", models.CreateComplaintRequest{Title: "   ", CategoryID: "road_damage"}},
		{"no category", "c1", models.CreateComplaintRequest{Title: "x"}},
		{"bad priority", "c1", models.CreateComplaintRequest{Title: "x", CategoryID: "road_damage", Priority: "asap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.complaints.CreateComplaint(f.ctx, tt.citizen, &tt.req)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreateComplaintUnmappedCategory(t *testing.T) {
	f := newFixture(t)
	resp, err := f.complaints.CreateComplaint(f.ctx, "c1", &models.CreateComplaintRequest{Title: "x", CategoryID: "noise"})
	require.NoError(t, err)
	assert.Equal(t, "public_works", f.complaint(resp.ComplaintID).DepartmentID)

	_, err = f.db.ExecContext(f.ctx, `UPDATE departments SET is_default = ?`, false)
	require.NoError(t, err)
	_, err = f.complaints.CreateComplaint(f.ctx, "c1", &models.CreateComplaintRequest{Title: "x", CategoryID: "noise"})
	assert.True(t, models.IsNotFound(err))
}

func TestCreateComplaintIntakeLimits(t *testing.T) {
	f := newFixture(t)
	f.complaints.WithIntakeLimits(repository.NewAbusePreventionRepository(f.db), IntakeLimits{
		MaxPerDay:       2,
		DuplicateWindow: 24 * time.Hour,
	})
	create := func(citizen, title string) error {
		_, err := f.complaints.CreateComplaint(f.ctx, citizen, &models.CreateComplaintRequest{
			Title:      title,
			CategoryID: "road_damage",
		})
		return err
	}
	conflictCode := func(err error) string {
		var conflict *models.ConflictError
		require.ErrorAs(t, err, &conflict)
		return conflict.Code
	}

	require.NoError(t, create("c1", "Pothole"))

	f.clock.Set(t0.Add(time.Hour))
	assert.Equal(t, models.ConflictDuplicate, conflictCode(create("c1", " pothole ")))
	require.NoError(t, create("c1", "Broken street light"))
	require.NoError(t, create("c2", "Pothole"), "other citizens are not affected")

	f.clock.Set(t0.Add(2 * time.Hour))
	assert.Equal(t, models.ConflictIntakeLimit, conflictCode(create("c1", "Fallen tree")))

	// the first complaint has left both windows
	f.clock.Set(t0.Add(25 * time.Hour))
	require.NoError(t, create("c1", "Pothole"))
}
