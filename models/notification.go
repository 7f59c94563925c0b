package models

import (
	"database/sql"
	"time"
)

// NotificationChannel represents the notification channel type
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelPush  NotificationChannel = "push"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// AllChannels lists every channel in dispatch order.
var AllChannels = []NotificationChannel{ChannelInApp, ChannelPush, ChannelEmail, ChannelSMS}

// QuietHoursSuppressed reports whether quiet hours hold back this channel.
func (c NotificationChannel) QuietHoursSuppressed() bool {
	return c == ChannelPush || c == ChannelSMS
}

// NotificationStatus represents the status of a notification
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// NotificationType classifies a notification for preferences and quiet hours
type NotificationType string

const (
	TypeAssignment   NotificationType = "assignment"
	TypeEscalation   NotificationType = "escalation"
	TypeStatusUpdate NotificationType = "status_update"
	TypeReminder     NotificationType = "reminder"
	TypeAnnouncement NotificationType = "announcement"
	TypeCritical     NotificationType = "critical"
)

// IsCritical reports whether the type may bypass quiet hours.
func (t NotificationType) IsCritical() bool {
	return t == TypeCritical
}

// ParseNotificationType validates a notification type coming from a request.
func ParseNotificationType(value string) (NotificationType, bool) {
	switch NotificationType(value) {
	case TypeAssignment, TypeEscalation, TypeStatusUpdate, TypeReminder, TypeAnnouncement, TypeCritical:
		return NotificationType(value), true
	}
	return "", false
}

// Notification is persisted before any delivery attempt. Content columns are
// never updated; only the delivery state (status, attempts, next attempt,
// last error) moves.
type Notification struct {
	NotificationID  string              `db:"notification_id" json:"notification_id"`
	RecipientUserID string              `db:"recipient_user_id" json:"recipient_user_id"`
	Type            NotificationType    `db:"type" json:"type"`
	Channel         NotificationChannel `db:"channel" json:"channel"`
	Title           string              `db:"title" json:"title"`
	Body            string              `db:"body" json:"body"`
	Payload         sql.NullString      `db:"payload" json:"payload,omitempty"` // JSON
	ReferenceID     sql.NullString      `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType   sql.NullString      `db:"reference_type" json:"reference_type,omitempty"`
	Status          NotificationStatus  `db:"status" json:"status"`
	Attempts        int                 `db:"attempts" json:"attempts"`
	MaxAttempts     int                 `db:"max_attempts" json:"max_attempts"`
	NextAttemptAt   sql.NullTime        `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastError       sql.NullString      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// NotificationLog represents a log entry for notification attempts
type NotificationLog struct {
	LogID          string             `db:"log_id" json:"log_id"`
	NotificationID string             `db:"notification_id" json:"notification_id"`
	AttemptNumber  int                `db:"attempt_number" json:"attempt_number"`
	Status         NotificationStatus `db:"status" json:"status"`
	ErrorMessage   sql.NullString     `db:"error_message" json:"error_message"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// NotificationPreference holds one user's channel switches and quiet hours.
// Channels is keyed by type then channel; missing entries fall back to
// DefaultChannelEnabled.
type NotificationPreference struct {
	UserID         string                                            `json:"user_id"`
	Channels       map[NotificationType]map[NotificationChannel]bool `json:"channels"`
	QuietStart     string                                            `json:"quiet_start,omitempty"` // HH:MM
	QuietEnd       string                                            `json:"quiet_end,omitempty"`   // HH:MM
	Timezone       string                                            `json:"timezone,omitempty"`
	CriticalBypass bool                                              `json:"critical_bypass"`
}

// DefaultChannelEnabled is used when a user has no explicit switch.
func DefaultChannelEnabled(channel NotificationChannel) bool {
	return channel == ChannelInApp || channel == ChannelPush
}

// DefaultNotificationPreference is the preference of a user who never saved one.
func DefaultNotificationPreference(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:         userID,
		Channels:       map[NotificationType]map[NotificationChannel]bool{},
		CriticalBypass: true,
	}
}

// ChannelEnabled reports whether a (type, channel) pair is switched on.
func (p *NotificationPreference) ChannelEnabled(t NotificationType, channel NotificationChannel) bool {
	if byChannel, ok := p.Channels[t]; ok {
		if enabled, ok := byChannel[channel]; ok {
			return enabled
		}
	}
	return DefaultChannelEnabled(channel)
}

// PushToken is a device token registered by a user.
type PushToken struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeliveryStats is the aggregate outcome of one dispatch.
type DeliveryStats struct {
	TargetUsers           int `json:"targetUsers"`
	StoredNotifications   int `json:"storedNotifications"`
	Delivered             int `json:"delivered"`
	Failed                int `json:"failed"`
	Deferred              int `json:"deferred"`
	PushNotificationsSent int `json:"pushNotificationsSent"`
}

// NotificationConfig holds configuration for notification system
type NotificationConfig struct {
	// Default retry configuration
	DefaultMaxAttempts int

	// Retry backoff configuration
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64

	// Fan-out configuration
	PushBatchSize   int
	WorkerPoolSize  int
	ProviderTimeout time.Duration

	// Worker configuration
	WorkerBatchSize int
	WorkerInterval  time.Duration
}

// DefaultNotificationConfig returns default notification configuration
func DefaultNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		DefaultMaxAttempts: 3,
		InitialRetryDelay:  1 * time.Minute,
		MaxRetryDelay:      30 * time.Minute,
		BackoffMultiplier:  2.0,
		PushBatchSize:      500,
		WorkerPoolSize:     8,
		ProviderTimeout:    10 * time.Second,
		WorkerBatchSize:    100,
		WorkerInterval:     30 * time.Second,
	}
}
