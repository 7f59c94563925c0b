package service

import (
	"testing"
	"time"

	"complaintengine/events"
	"complaintengine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = Actor{ID: "op-1", Type: models.ActorOperator}

func TestIsValidStatusTransition(t *testing.T) {
	tests := []struct {
		from, to models.ComplaintStatus
		want     bool
	}{
		{models.StatusSubmitted, models.StatusUnderReview, true},
		{models.StatusUnderReview, models.StatusAssigned, true},
		{models.StatusAssigned, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusOnHold, true},
		{models.StatusOnHold, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusResolved, true},
		{models.StatusResolved, models.StatusClosed, true},
		{models.StatusSubmitted, models.StatusResolved, false},
		{models.StatusClosed, models.StatusInProgress, false},
		{models.StatusRejected, models.StatusUnderReview, false},
		{models.StatusResolved, models.StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidStatusTransition(tt.from, tt.to))
		})
	}
}

func TestParseComplaintStatus(t *testing.T) {
	status, ok := ParseComplaintStatus("on_hold")
	assert.True(t, ok)
	assert.Equal(t, models.StatusOnHold, status)

	_, ok = ParseComplaintStatus("escalated")
	assert.False(t, ok)
}

func TestTransitionAppendsHistory(t *testing.T) {
	f := newFixture(t)
	id := f.submit(models.PriorityMedium)

	f.clock.Set(t0.Add(time.Minute))
	c, err := f.ledger.Transition(f.ctx, id, models.StatusUnderReview, operator, "triage")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, c.Status)
	assert.Equal(t, int64(1), c.Version)

	history, err := f.ledger.Timeline(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].OldStatus.Valid)
	assert.Equal(t, models.ActorCitizen, history[0].ChangedByType)
	assert.Equal(t, "submitted", history[1].OldStatus.String)
	assert.Equal(t, models.StatusUnderReview, history[1].NewStatus)
	assert.Equal(t, "op-1", history[1].ChangedBy)
	assert.Equal(t, "triage", history[1].Notes.String)
	assert.Equal(t, t0.Add(time.Minute), history[1].CreatedAt.UTC())

	changed := f.bus.(*recordingBus).ofType(events.ComplaintStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "submitted", changed[0].OldStatus)
	assert.Equal(t, "under_review", changed[0].NewStatus)
}

func TestTransitionRejectsDisallowedMove(t *testing.T) {
	f := newFixture(t)
	id := f.submit(models.PriorityMedium)

	_, err := f.ledger.Transition(f.ctx, id, models.StatusResolved, operator, "")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	c := f.complaint(id)
	assert.Equal(t, models.StatusSubmitted, c.Status)
	assert.Equal(t, int64(0), c.Version)
	history, err := f.ledger.Timeline(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTransitionUnknownComplaint(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Transition(f.ctx, "missing", models.StatusUnderReview, operator, "")
	assert.True(t, models.IsNotFound(err))

	_, err = f.ledger.Timeline(f.ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestReopenStartsNewCycle(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 0, 4.0, t0)
	id := f.submit(models.PriorityUrgent)
	a, err := f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(30 * time.Hour))
	_, err = f.escalations.EvaluateComplaint(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, f.complaint(id).EscalationLevel)

	worker := Actor{ID: "user-e1", Type: models.ActorEmployee}
	for _, status := range []models.AssignmentStatus{models.AssignmentAccepted, models.AssignmentInProgress, models.AssignmentCompleted} {
		_, err = f.assignments.UpdateAssignmentStatus(f.ctx, a.AssignmentID, status, worker, "")
		require.NoError(t, err)
	}
	require.Equal(t, models.StatusResolved, f.complaint(id).Status)

	reopenedAt := t0.Add(40 * time.Hour)
	f.clock.Set(reopenedAt)
	c, err := f.ledger.Reopen(f.ctx, id, Actor{ID: "citizen-1", Type: models.ActorCitizen}, "still broken")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, c.Status)
	assert.Equal(t, 0, c.EscalationLevel)
	assert.Equal(t, 1, c.EscalationCycle)
	assert.False(t, c.AssignedEmployeeID.Valid)
	assert.False(t, c.ResolvedAt.Valid)
	assert.Equal(t, reopenedAt.Add(24*time.Hour), c.SLADeadline.UTC())

	stored := f.complaint(id)
	assert.Equal(t, c.Version, stored.Version)
	assert.Equal(t, reopenedAt.Add(24*time.Hour), stored.SLADeadline.UTC())

	history, err := f.ledger.Timeline(f.ctx, id)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "resolved", last.OldStatus.String)
	assert.Equal(t, models.StatusUnderReview, last.NewStatus)
	assert.Equal(t, "still broken", last.Notes.String)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Version, history[i-1].Version)
	}
}

func TestReopenRequiresFinishedComplaint(t *testing.T) {
	f := newFixture(t)
	id := f.submit(models.PriorityMedium)

	_, err := f.ledger.Reopen(f.ctx, id, operator, "")
	assert.True(t, models.IsValidation(err))

	_, err = f.ledger.Transition(f.ctx, id, models.StatusRejected, operator, "duplicate")
	require.NoError(t, err)
	c, err := f.ledger.Reopen(f.ctx, id, operator, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, c.Status)
}

// assertAssignmentsConsistent checks that the complaint has at most one live
// assignment and that every employee's workload matches its live assignments.
func assertAssignmentsConsistent(t *testing.T, f *fixture, complaintID string, employeeIDs ...string) {
	t.Helper()
	assignments, err := f.assignmentRepo.GetAssignmentsByComplaint(f.ctx, complaintID)
	require.NoError(t, err)
	live := 0
	for _, a := range assignments {
		if a.Status.HoldsWorkload() {
			live++
		}
	}
	assert.LessOrEqual(t, live, 1, "live assignments of %s", complaintID)

	c := f.complaint(complaintID)
	if live == 0 && c.Status != models.StatusResolved && c.Status != models.StatusClosed {
		assert.False(t, c.AssignedEmployeeID.Valid, "owner without a live assignment")
	}
	for _, id := range employeeIDs {
		count, err := f.assignmentRepo.CountWorkloadAssignments(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, count, f.employee(id).CurrentWorkload, "workload of %s", id)
	}
}

func TestTransitionIntoAssignedIsReserved(t *testing.T) {
	f := newFixture(t)
	id := f.submit(models.PriorityMedium)
	_, err := f.ledger.Transition(f.ctx, id, models.StatusUnderReview, operator, "")
	require.NoError(t, err)

	_, err = f.ledger.Transition(f.ctx, id, models.StatusAssigned, operator, "")
	assert.True(t, models.IsValidation(err))
	c := f.complaint(id)
	assert.Equal(t, models.StatusUnderReview, c.Status)
	assert.False(t, c.AssignedEmployeeID.Valid)
}

func TestTransitionOutOfAssignedReleasesAssignment(t *testing.T) {
	for _, target := range []models.ComplaintStatus{models.StatusRejected, models.StatusUnderReview} {
		t.Run(string(target), func(t *testing.T) {
			f := newFixture(t)
			f.addEmployee("e1", 0, 4.0, t0)
			id := f.submit(models.PriorityMedium)
			a, err := f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
			require.NoError(t, err)
			require.Equal(t, 1, f.employee("e1").CurrentWorkload)

			c, err := f.ledger.Transition(f.ctx, id, target, operator, "")
			require.NoError(t, err)
			assert.False(t, c.AssignedEmployeeID.Valid)

			released, err := f.assignmentRepo.GetAssignmentByID(f.ctx, a.AssignmentID)
			require.NoError(t, err)
			assert.Equal(t, models.AssignmentSuperseded, released.Status)
			assert.True(t, released.SupersededAt.Valid)
			assert.Equal(t, 0, f.employee("e1").CurrentWorkload)
			assertAssignmentsConsistent(t, f, id, "e1")
		})
	}
}

func TestRejectThenReopenAllowsSingleReassignment(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 0, 4.0, t0)
	id := f.submit(models.PriorityMedium)
	_, err := f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)

	_, err = f.ledger.Transition(f.ctx, id, models.StatusRejected, operator, "spam")
	require.NoError(t, err)
	_, err = f.ledger.Reopen(f.ctx, id, operator, "not spam")
	require.NoError(t, err)

	_, err = f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)
	_, err = f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	assert.True(t, models.IsConflict(err))

	assert.Equal(t, 1, f.employee("e1").CurrentWorkload)
	assertAssignmentsConsistent(t, f, id, "e1")
}

func TestTransitionToResolvedCompletesAssignment(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 0, 4.0, t0)
	id := f.submit(models.PriorityMedium)
	a, err := f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)

	_, err = f.ledger.Transition(f.ctx, id, models.StatusInProgress, operator, "")
	require.NoError(t, err)
	_, err = f.ledger.Transition(f.ctx, id, models.StatusOnHold, operator, "waiting for parts")
	require.NoError(t, err)
	assert.Equal(t, 1, f.employee("e1").CurrentWorkload, "on_hold keeps the assignment")
	_, err = f.ledger.Transition(f.ctx, id, models.StatusInProgress, operator, "")
	require.NoError(t, err)

	c, err := f.ledger.Transition(f.ctx, id, models.StatusResolved, operator, "")
	require.NoError(t, err)
	assert.Equal(t, "e1", c.AssignedEmployeeID.String)

	completed, err := f.assignmentRepo.GetAssignmentByID(f.ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentCompleted, completed.Status)
	assert.True(t, completed.CompletedAt.Valid)
	assert.Equal(t, 0, f.employee("e1").CurrentWorkload)
	assertAssignmentsConsistent(t, f, id, "e1")

	_, err = f.ledger.Reopen(f.ctx, id, operator, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.employee("e1").CurrentWorkload)
	assertAssignmentsConsistent(t, f, id, "e1")
}

func TestReopenReleasesStrandedAssignment(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 0, 4.0, t0)
	id := f.submit(models.PriorityMedium)
	a, err := f.assignments.Assign(f.ctx, id, AssignRequest{Mode: AutoAssignment{}, AssignedBy: "op-1"})
	require.NoError(t, err)

	// a row left live by an older release of the service
	_, err = f.db.ExecContext(f.ctx, `UPDATE complaints SET status = ? WHERE complaint_id = ?`, models.StatusClosed, id)
	require.NoError(t, err)

	_, err = f.ledger.Reopen(f.ctx, id, operator, "")
	require.NoError(t, err)
	stranded, err := f.assignmentRepo.GetAssignmentByID(f.ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentSuperseded, stranded.Status)
	assert.Equal(t, 0, f.employee("e1").CurrentWorkload)
	assertAssignmentsConsistent(t, f, id, "e1")
}
