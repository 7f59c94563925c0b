package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"complaintengine/models"

	"github.com/google/uuid"
)

// NotificationRepository handles database operations for notifications and their attempt log
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	notification_id, recipient_user_id, type, channel, title, body, payload,
	reference_id, reference_type, status, attempts, max_attempts,
	next_attempt_at, last_error, created_at, updated_at`

// CreateNotification creates a new notification record
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	n.CreatedAt = dbTime(n.CreatedAt)
	n.UpdatedAt = dbTime(n.UpdatedAt)
	if n.NextAttemptAt.Valid {
		n.NextAttemptAt.Time = dbTime(n.NextAttemptAt.Time)
	}
	query := `INSERT INTO notifications (` + notificationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.NotificationID, n.RecipientUserID, n.Type, n.Channel, n.Title, n.Body, n.Payload,
		n.ReferenceID, n.ReferenceType, n.Status, n.Attempts, n.MaxAttempts,
		n.NextAttemptAt, n.LastError, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(
		&n.NotificationID, &n.RecipientUserID, &n.Type, &n.Channel, &n.Title, &n.Body, &n.Payload,
		&n.ReferenceID, &n.ReferenceType, &n.Status, &n.Attempts, &n.MaxAttempts,
		&n.NextAttemptAt, &n.LastError, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotificationByID retrieves a notification by ID
func (r *NotificationRepository) GetNotificationByID(ctx context.Context, notificationID string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE notification_id = ?`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, notificationID))
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("notification", notificationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// GetDueNotifications returns deferred notifications whose window ended and
// failed ones with attempts left whose backoff elapsed.
func (r *NotificationRepository) GetDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status IN (?, ?)
			AND attempts < max_attempts
			AND next_attempt_at IS NOT NULL
			AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query,
		models.NotificationStatusPending, models.NotificationStatusFailed, dbTime(now), limit)
}

// GetNotificationsByRecipient returns a user's notifications, newest first
func (r *NotificationRepository) GetNotificationsByRecipient(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_user_id = ? ORDER BY created_at DESC, notification_id`
	return r.list(ctx, query, userID)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// UpdateDeliveryState records the outcome of a delivery attempt. Content
// columns are never touched.
func (r *NotificationRepository) UpdateDeliveryState(
	ctx context.Context,
	notificationID string,
	status models.NotificationStatus,
	attempts int,
	nextAttemptAt sql.NullTime,
	lastError sql.NullString,
	now time.Time,
) error {
	if nextAttemptAt.Valid {
		nextAttemptAt.Time = dbTime(nextAttemptAt.Time)
	}
	query := `
		UPDATE notifications
		SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE notification_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, status, attempts, nextAttemptAt, lastError, dbTime(now), notificationID)
	if err != nil {
		return fmt.Errorf("failed to update notification delivery state: %w", err)
	}
	return nil
}

// CreateNotificationLog appends one attempt to the log
func (r *NotificationRepository) CreateNotificationLog(ctx context.Context, log *models.NotificationLog) error {
	if log.LogID == "" {
		log.LogID = uuid.New().String()
	}
	log.CreatedAt = dbTime(log.CreatedAt)
	query := `
		INSERT INTO notification_logs (log_id, notification_id, attempt_number, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.LogID, log.NotificationID, log.AttemptNumber, log.Status, log.ErrorMessage, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

// GetNotificationLogs returns the attempt log of a notification
func (r *NotificationRepository) GetNotificationLogs(ctx context.Context, notificationID string) ([]models.NotificationLog, error) {
	query := `
		SELECT log_id, notification_id, attempt_number, status, error_message, created_at
		FROM notification_logs
		WHERE notification_id = ?
		ORDER BY attempt_number ASC
	`
	rows, err := r.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	defer rows.Close()

	var logs []models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		if err := rows.Scan(&l.LogID, &l.NotificationID, &l.AttemptNumber, &l.Status, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
