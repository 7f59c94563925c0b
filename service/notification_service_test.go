package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"complaintengine/models"
	"complaintengine/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func announce(target Target) DispatchRequest {
	return DispatchRequest{
		Target: target,
		Title:  "Water outage",
		Body:   "Supply resumes at 18:00",
		Type:   models.TypeAnnouncement,
		Data:   map[string]interface{}{"ward": 7},
	}
}

func byChannel(list []models.Notification) map[models.NotificationChannel]models.Notification {
	out := make(map[models.NotificationChannel]models.Notification, len(list))
	for _, n := range list {
		out[n.Channel] = n
	}
	return out
}

func TestDispatchToSingleUser(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")

	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStats{
		TargetUsers:           1,
		StoredNotifications:   2,
		Delivered:             2,
		PushNotificationsSent: 1,
	}, *stats)

	rows := byChannel(f.notificationsFor("u1"))
	require.Len(t, rows, 2)
	assert.Equal(t, models.NotificationStatusDelivered, rows[models.ChannelInApp].Status)
	assert.Equal(t, models.NotificationStatusDelivered, rows[models.ChannelPush].Status)
	assert.Equal(t, 1, rows[models.ChannelPush].Attempts)
	assert.JSONEq(t, `{"ward":7}`, rows[models.ChannelInApp].Payload.String)

	logs, err := f.notificationRepo.GetNotificationLogs(f.ctx, rows[models.ChannelPush].NotificationID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].AttemptNumber)
}

func TestDispatchValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  DispatchRequest
	}{
		{"no target", DispatchRequest{Title: "x", Type: models.TypeReminder}},
		{"empty user", DispatchRequest{Target: UserTarget{}, Title: "x", Type: models.TypeReminder}},
		{"empty list", DispatchRequest{Target: UsersTarget{}, Title: "x", Type: models.TypeReminder}},
		{"empty role", DispatchRequest{Target: RoleTarget{}, Title: "x", Type: models.TypeReminder}},
		{"no title", DispatchRequest{Target: UserTarget{UserID: "u1"}, Type: models.TypeReminder}},
		{"bad type", DispatchRequest{Target: UserTarget{UserID: "u1"}, Title: "x", Type: "gossip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.notifications.Dispatch(f.ctx, tt.req)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestDispatchUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "ghost"}))
	assert.True(t, models.IsNotFound(err))

	stats, err := f.notifications.Dispatch(f.ctx, announce(UsersTarget{UserIDs: []string{"ghost"}}))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TargetUsers)
}

func TestDispatchToRoleWithinDepartment(t *testing.T) {
	f := newFixture(t)
	f.addUser("sup-1", models.RoleSupervisor, "public_works")
	f.addUser("sup-2", models.RoleSupervisor, "public_works")
	f.addUser("sup-3", models.RoleSupervisor, "water_works")
	f.addUser("head-1", models.RoleDepartmentHead, "public_works")
	_, err := f.db.ExecContext(f.ctx, `UPDATE users SET is_active = ? WHERE user_id = ?`, false, "sup-2")
	require.NoError(t, err)

	stats, err := f.notifications.Dispatch(f.ctx, announce(RoleTarget{Role: models.RoleSupervisor, DepartmentID: "public_works"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TargetUsers)
	assert.Len(t, f.notificationsFor("sup-1"), 2)
	assert.Empty(t, f.notificationsFor("sup-2"))
	assert.Empty(t, f.notificationsFor("sup-3"))
	assert.Empty(t, f.notificationsFor("head-1"))

	stats, err = f.notifications.Dispatch(f.ctx, announce(RoleTarget{Role: models.RoleSupervisor}))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TargetUsers)
}

func TestDispatchUsersTargetDedupes(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addUser("u2", models.RoleCitizen, "")

	stats, err := f.notifications.Dispatch(f.ctx, announce(UsersTarget{UserIDs: []string{"u1", "u2", "u1", ""}}))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TargetUsers)
	assert.Equal(t, 4, stats.StoredNotifications)
}

func TestDispatchHonorsDisabledChannel(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	_, err := f.notifications.UpdatePreferences(f.ctx, "u1", &models.UpdatePreferencesRequest{
		Channels: map[string]map[string]bool{"announcement": {"push": false}},
	})
	require.NoError(t, err)

	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredNotifications)
	assert.Equal(t, 0, f.push.batchCount())
	rows := byChannel(f.notificationsFor("u1"))
	assert.Contains(t, rows, models.ChannelInApp)
	assert.NotContains(t, rows, models.ChannelPush)

	// other types keep their defaults
	req := announce(UserTarget{UserID: "u1"})
	req.Type = models.TypeReminder
	stats, err = f.notifications.Dispatch(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.StoredNotifications)
}

func TestDispatchWithoutPushToken(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")

	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.PushNotificationsSent)

	push := byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusFailed, push.Status)
	assert.False(t, push.NextAttemptAt.Valid)
	assert.Equal(t, notification.ErrNoPushToken.Error(), push.LastError.String)
}

func TestDispatchEmailThroughSender(t *testing.T) {
	email := &fakeSender{channel: models.ChannelEmail}
	f := newFixture(t, withSenders(email))
	f.addUser("u1", models.RoleCitizen, "")
	_, err := f.notifications.UpdatePreferences(f.ctx, "u1", &models.UpdatePreferencesRequest{
		Channels: map[string]map[string]bool{"announcement": {"email": true, "push": false}},
	})
	require.NoError(t, err)

	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Delivered)
	assert.Equal(t, 1, email.sent)
	assert.Equal(t, models.NotificationStatusSent, byChannel(f.notificationsFor("u1"))[models.ChannelEmail].Status)
}

func TestDispatchSMSWithoutSenderFails(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	_, err := f.notifications.UpdatePreferences(f.ctx, "u1", &models.UpdatePreferencesRequest{
		Channels: map[string]map[string]bool{"reminder": {"sms": true, "push": false}},
	})
	require.NoError(t, err)

	req := announce(UserTarget{UserID: "u1"})
	req.Type = models.TypeReminder
	stats, err := f.notifications.Dispatch(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	sms := byChannel(f.notificationsFor("u1"))[models.ChannelSMS]
	assert.Equal(t, models.NotificationStatusFailed, sms.Status)
	assert.False(t, sms.NextAttemptAt.Valid)
}

func TestDispatchBatchesPushTokens(t *testing.T) {
	cfg := models.DefaultNotificationConfig()
	cfg.PushBatchSize = 2
	f := newFixture(t, withNotificationConfig(cfg))
	f.addUser("ua", models.RoleCitizen, "")
	f.addUser("ub", models.RoleCitizen, "")
	for _, token := range tokens("a", 2) {
		f.addToken("ua", token)
	}
	for _, token := range tokens("b", 2) {
		f.addToken("ub", token)
	}
	f.push.failBatch = func(batch []string) error {
		for _, token := range batch {
			if strings.HasPrefix(token, "b-") {
				return errProvider(true)
			}
		}
		return nil
	}

	stats, err := f.notifications.Dispatch(f.ctx, announce(UsersTarget{UserIDs: []string{"ua", "ub"}}))
	require.NoError(t, err)
	assert.Equal(t, 2, f.push.batchCount())
	for _, batch := range f.push.batches {
		assert.Len(t, batch, 2)
	}
	assert.Equal(t, 1, stats.PushNotificationsSent)
	assert.Equal(t, 3, stats.Delivered)
	assert.Equal(t, 1, stats.Failed)

	pushA := byChannel(f.notificationsFor("ua"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusDelivered, pushA.Status)

	pushB := byChannel(f.notificationsFor("ub"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusFailed, pushB.Status)
	require.True(t, pushB.NextAttemptAt.Valid)
	assert.Equal(t, t0.Add(time.Minute), pushB.NextAttemptAt.Time.UTC())
}

func TestDispatchDropsInvalidTokens(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "good")
	f.addToken("u1", "stale")
	f.push.reject = map[string]string{"stale": "unregistered"}

	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PushNotificationsSent)

	remaining, err := f.userRepo.GetPushTokens(f.ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, remaining["u1"])
}

func TestDispatchDefersDuringQuietHours(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	bypass := false
	_, err := f.notifications.UpdatePreferences(f.ctx, "u1", &models.UpdatePreferencesRequest{
		QuietStart:     "22:00",
		QuietEnd:       "07:00",
		CriticalBypass: &bypass,
	})
	require.NoError(t, err)

	night := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	f.clock.Set(night)
	stats, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 0, f.push.batchCount())

	push := byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusPending, push.Status)
	morning := time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, morning, push.NextAttemptAt.Time.UTC())

	// critical waits too while bypass is off
	req := announce(UserTarget{UserID: "u1"})
	req.Type = models.TypeCritical
	stats, err = f.notifications.Dispatch(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)

	f.clock.Set(night.Add(time.Hour))
	retry, err := f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, retry.Processed)

	f.clock.Set(morning)
	retry, err = f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Processed)
	assert.Equal(t, 2, retry.Delivered)
	assert.Equal(t, 2, f.push.batchCount())
}

func TestCriticalBypassesQuietHours(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	_, err := f.notifications.UpdatePreferences(f.ctx, "u1", &models.UpdatePreferencesRequest{
		QuietStart: "22:00",
		QuietEnd:   "07:00",
	})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC))
	req := announce(UserTarget{UserID: "u1"})
	req.Type = models.TypeCritical
	stats, err := f.notifications.Dispatch(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deferred)
	assert.Equal(t, 1, stats.PushNotificationsSent)
	assert.Equal(t, "high", f.push.lastPriority())
}

func TestRetryDueBacksOff(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	f.push.failBatch = func([]string) error { return errProvider(true) }

	_, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	push := byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	require.Equal(t, 1, push.Attempts)
	require.Equal(t, t0.Add(time.Minute), push.NextAttemptAt.Time.UTC())

	f.clock.Set(t0.Add(30 * time.Second))
	stats, err := f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)

	retryAt := t0.Add(time.Minute)
	f.clock.Set(retryAt)
	stats, err = f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	push = byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, 2, push.Attempts)
	assert.Equal(t, retryAt.Add(2*time.Minute), push.NextAttemptAt.Time.UTC())

	f.clock.Set(retryAt.Add(2 * time.Minute))
	_, err = f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	push = byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, 3, push.Attempts)
	assert.Equal(t, models.NotificationStatusFailed, push.Status)
	assert.False(t, push.NextAttemptAt.Valid)

	f.clock.Set(retryAt.Add(time.Hour))
	stats, err = f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
}

func TestRetryDueRecovers(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	failing := true
	f.push.failBatch = func([]string) error {
		if failing {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)

	failing = false
	f.clock.Set(t0.Add(time.Minute))
	stats, err := f.notifications.RetryDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delivered)
	push := byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusDelivered, push.Status)
	assert.Equal(t, 2, push.Attempts)
}

func TestNonRetryableProviderErrorIsFinal(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", models.RoleCitizen, "")
	f.addToken("u1", "tok-1")
	f.push.failBatch = func([]string) error { return errProvider(false) }

	_, err := f.notifications.Dispatch(f.ctx, announce(UserTarget{UserID: "u1"}))
	require.NoError(t, err)
	push := byChannel(f.notificationsFor("u1"))[models.ChannelPush]
	assert.Equal(t, models.NotificationStatusFailed, push.Status)
	assert.False(t, push.NextAttemptAt.Valid)
}

func TestNextAttemptAtIsCapped(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, t0.Add(time.Minute), f.notifications.nextAttemptAt(0, t0))
	assert.Equal(t, t0.Add(4*time.Minute), f.notifications.nextAttemptAt(2, t0))
	assert.Equal(t, t0.Add(30*time.Minute), f.notifications.nextAttemptAt(10, t0))
}

func TestDeliverPushSharedTokenSettlesEveryRow(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fail   bool
		status models.NotificationStatus
	}{
		{name: "delivered", status: models.NotificationStatusDelivered},
		{name: "batch failure", fail: true, status: models.NotificationStatusFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser("u1", models.RoleCitizen, "")
			f.addToken("u1", "tok-1")
			if tc.fail {
				f.push.failBatch = func([]string) error { return errProvider(true) }
			}

			var rows []*models.Notification
			for _, title := range []string{"first", "second"} {
				n := &models.Notification{
					RecipientUserID: "u1",
					Type:            models.TypeAnnouncement,
					Channel:         models.ChannelPush,
					Title:           title,
					Body:            "body",
					Status:          models.NotificationStatusPending,
					MaxAttempts:     3,
					CreatedAt:       t0,
					UpdatedAt:       t0,
				}
				require.NoError(t, f.notificationRepo.CreateNotification(f.ctx, n))
				rows = append(rows, n)
			}

			g, gctx := errgroup.WithContext(f.ctx)
			f.notifications.deliverPush(gctx, g, rows, notification.PushPayload{Title: "first", Body: "body"}, &statsRecorder{})
			require.NoError(t, g.Wait())

			require.Equal(t, 1, f.push.batchCount())
			assert.Equal(t, []string{"tok-1"}, f.push.batches[0])
			for _, n := range rows {
				stored, err := f.notificationRepo.GetNotificationByID(f.ctx, n.NotificationID)
				require.NoError(t, err)
				assert.Equal(t, tc.status, stored.Status, n.Title)
				assert.Equal(t, 1, stored.Attempts, n.Title)
				assert.Equal(t, tc.fail, stored.NextAttemptAt.Valid, n.Title)
			}
		})
	}
}
