package service

import (
	"fmt"
	"time"

	"complaintengine/models"
)

// parseClock parses an "HH:MM" wall-clock time into minutes after midnight
func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func preferenceLocation(pref *models.NotificationPreference) *time.Location {
	if pref.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// quietWindow reports whether now falls inside the user's quiet hours and,
// if so, when the window ends (in UTC). Windows may wrap midnight; a window
// whose start equals its end is empty.
func quietWindow(pref *models.NotificationPreference, now time.Time) (bool, time.Time) {
	if pref == nil || pref.QuietStart == "" || pref.QuietEnd == "" {
		return false, time.Time{}
	}
	start, err := parseClock(pref.QuietStart)
	if err != nil {
		return false, time.Time{}
	}
	end, err := parseClock(pref.QuietEnd)
	if err != nil || start == end {
		return false, time.Time{}
	}

	local := now.In(preferenceLocation(pref))
	minute := local.Hour()*60 + local.Minute()
	endToday := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, local.Location())

	if start < end {
		if minute >= start && minute < end {
			return true, endToday.UTC()
		}
		return false, time.Time{}
	}

	// wraps midnight
	if minute >= start {
		return true, endToday.AddDate(0, 0, 1).UTC()
	}
	if minute < end {
		return true, endToday.UTC()
	}
	return false, time.Time{}
}

// shouldDefer decides whether a notification on channel must wait for the
// end of the recipient's quiet hours.
func shouldDefer(pref *models.NotificationPreference, t models.NotificationType, channel models.NotificationChannel, now time.Time) (bool, time.Time) {
	if !channel.QuietHoursSuppressed() {
		return false, time.Time{}
	}
	if t.IsCritical() && pref.CriticalBypass {
		return false, time.Time{}
	}
	return quietWindow(pref, now)
}
