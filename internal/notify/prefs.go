package notify

import (
	"encoding/json"
	"log"

	"github.com/pactops/fieldops/internal/models"
)

// preferences mirrors the notificationPreferences block of a user's
// settings document.
type preferences struct {
	Enabled    bool            `json:"enabled"`
	Categories map[string]bool `json:"categories"`
	QuietHours *quietHours     `json:"quietHours"`
}

type quietHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"startHour"`
	EndHour   int  `json:"endHour"`
}

type settingsDoc struct {
	NotificationPreferences *preferences `json:"notificationPreferences"`
}

// shouldSend applies the user's notification preferences. Users with
// no stored preferences (or an unreadable settings row) receive
// everything. Urgent notifications bypass quiet hours.
func (t *Trigger) shouldSend(userID, category, priority string) bool {
	var s models.UserSettings
	if err := t.db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return true
	}

	var doc settingsDoc
	if err := json.Unmarshal([]byte(s.Settings), &doc); err != nil {
		log.Printf("notify: unreadable settings for %s: %v", userID, err)
		return true
	}
	prefs := doc.NotificationPreferences
	if prefs == nil {
		return true
	}

	if !prefs.Enabled {
		return false
	}
	if !prefs.Categories[category] {
		return false
	}
	if prefs.QuietHours != nil && prefs.QuietHours.Enabled && priority != PriorityUrgent {
		if t.withinQuietHours(*prefs.QuietHours) {
			return false
		}
	}
	return true
}

// withinQuietHours reports whether the current hour falls inside the
// quiet window. A window whose start exceeds its end wraps midnight.
func (t *Trigger) withinQuietHours(q quietHours) bool {
	hour := t.now().Hour()
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}
