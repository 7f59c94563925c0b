package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"complaintengine/models"
)

// PreferenceRepository handles database operations for notification preferences
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetPreference returns a user's preferences, or the defaults when none were saved.
func (r *PreferenceRepository) GetPreference(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	query := `
		SELECT channels, quiet_start, quiet_end, timezone, critical_bypass
		FROM notification_preferences
		WHERE user_id = ?
	`
	var channelsJSON string
	var quietStart, quietEnd, timezone sql.NullString
	pref := models.DefaultNotificationPreference(userID)

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&channelsJSON, &quietStart, &quietEnd, &timezone, &pref.CriticalBypass,
	)
	if err == sql.ErrNoRows {
		return pref, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}

	if channelsJSON != "" {
		if err := json.Unmarshal([]byte(channelsJSON), &pref.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channel preferences: %w", err)
		}
	}
	if pref.Channels == nil {
		pref.Channels = map[models.NotificationType]map[models.NotificationChannel]bool{}
	}
	pref.QuietStart = quietStart.String
	pref.QuietEnd = quietEnd.String
	pref.Timezone = timezone.String
	return pref, nil
}

// GetPreferences loads preferences for several users at once. Users without a
// saved row get the defaults.
func (r *PreferenceRepository) GetPreferences(ctx context.Context, userIDs []string) (map[string]*models.NotificationPreference, error) {
	prefs := make(map[string]*models.NotificationPreference, len(userIDs))
	for _, id := range userIDs {
		pref, err := r.GetPreference(ctx, id)
		if err != nil {
			return nil, err
		}
		prefs[id] = pref
	}
	return prefs, nil
}

// SavePreference replaces a user's preferences
func (r *PreferenceRepository) SavePreference(ctx context.Context, pref *models.NotificationPreference, now time.Time) error {
	channelsJSON, err := json.Marshal(pref.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode channel preferences: %w", err)
	}

	update := `
		UPDATE notification_preferences
		SET channels = ?, quiet_start = ?, quiet_end = ?, timezone = ?, critical_bypass = ?, updated_at = ?
		WHERE user_id = ?
	`
	result, err := r.db.ExecContext(ctx, update,
		string(channelsJSON), nullString(pref.QuietStart), nullString(pref.QuietEnd), nullString(pref.Timezone),
		pref.CriticalBypass, dbTime(now), pref.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification preference: %w", err)
	}
	if n, err := rowsAffected(result); err != nil || n > 0 {
		return err
	}

	insert := `
		INSERT INTO notification_preferences (user_id, channels, quiet_start, quiet_end, timezone, critical_bypass, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, insert,
		pref.UserID, string(channelsJSON), nullString(pref.QuietStart), nullString(pref.QuietEnd), nullString(pref.Timezone),
		pref.CriticalBypass, dbTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification preference: %w", err)
	}
	return nil
}
