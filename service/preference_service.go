package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"complaintengine/models"
)

// GetPreferences returns a user's notification preferences (defaults when never saved)
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	return s.preferences.GetPreference(ctx, userID)
}

// UpdatePreferences merges the request into the stored preferences of userID.
// Channel switches not named in the request keep their current value.
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID string, req *models.UpdatePreferencesRequest) (*models.NotificationPreference, error) {
	pref, err := s.preferences.GetPreference(ctx, userID)
	if err != nil {
		return nil, err
	}

	for typeName, byChannel := range req.Channels {
		t, ok := models.ParseNotificationType(typeName)
		if !ok {
			return nil, models.NewValidationError("channels", fmt.Sprintf("unknown notification type %q", typeName))
		}
		for channelName, enabled := range byChannel {
			channel, ok := parseChannel(channelName)
			if !ok {
				return nil, models.NewValidationError("channels", fmt.Sprintf("unknown channel %q", channelName))
			}
			if pref.Channels[t] == nil {
				pref.Channels[t] = map[models.NotificationChannel]bool{}
			}
			pref.Channels[t][channel] = enabled
		}
	}

	start, end := strings.TrimSpace(req.QuietStart), strings.TrimSpace(req.QuietEnd)
	if (start == "") != (end == "") {
		return nil, models.NewValidationError("quiet_hours", "quiet_start and quiet_end must be set together")
	}
	if start != "" {
		if _, err := parseClock(start); err != nil {
			return nil, models.NewValidationError("quiet_start", err.Error())
		}
		if _, err := parseClock(end); err != nil {
			return nil, models.NewValidationError("quiet_end", err.Error())
		}
	}
	pref.QuietStart, pref.QuietEnd = start, end

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, models.NewValidationError("timezone", fmt.Sprintf("unknown timezone %q", req.Timezone))
		}
	}
	pref.Timezone = req.Timezone
	if req.CriticalBypass != nil {
		pref.CriticalBypass = *req.CriticalBypass
	}

	if err := s.preferences.SavePreference(ctx, pref, s.now()); err != nil {
		return nil, err
	}
	return pref, nil
}

func parseChannel(value string) (models.NotificationChannel, bool) {
	for _, channel := range models.AllChannels {
		if string(channel) == value {
			return channel, true
		}
	}
	return "", false
}

// RegisterPushToken stores a device token for userID
func (s *NotificationService) RegisterPushToken(ctx context.Context, userID string, req *models.RegisterPushTokenRequest) (*models.PushToken, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, models.NewValidationError("token", "token is required")
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case "":
		platform = "unknown"
	case "ios", "android", "web":
	default:
		return nil, models.NewValidationError("platform", "platform must be ios, android or web")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	pt := &models.PushToken{Token: token, UserID: userID, Platform: platform}
	if err := s.users.SavePushToken(ctx, pt, s.now()); err != nil {
		return nil, err
	}
	return pt, nil
}
