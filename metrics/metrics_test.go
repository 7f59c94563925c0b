package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ComplaintCreated("urgent")
	m.AssignmentMade("auto")
	m.AssignmentMade("auto")
	m.AssignmentConflict()
	m.Escalated(1)
	m.SweepCompleted(150*time.Millisecond, 2)
	m.NotificationOutcome("push", "delivered")
	m.PushBatch("failed")
	m.StatusChanged("assigned")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComplaintsCreated.WithLabelValues("urgent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AssignmentsTotal.WithLabelValues("auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssignmentConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("push", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushBatchesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusTransitions.WithLabelValues("assigned")))

	done := m.DispatchStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsInFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NotificationsInFlight))

	count, err := testutil.GatherAndCount(reg, "complaint_engine_escalation_sweep_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ComplaintCreated("low")
		m.Escalated(2)
		m.SweepCompleted(time.Second, 1)
		m.DispatchStarted()()
	})
}
