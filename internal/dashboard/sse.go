package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/models"
)

// alertEvent holds data for an alert SSE event.
type alertEvent struct {
	ID                  uint   `json:"id"`
	TaskBudgetID        string `json:"taskBudgetId"`
	AlertType           string `json:"alertType"`
	Severity            string `json:"severity"`
	ThresholdPercentage int    `json:"thresholdPercentage"`
	Title               string `json:"title"`
	ActiveCount         int64  `json:"activeCount"`
}

// handleSSE streams newly created active alerts by polling the alerts
// table.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Without a database there is nothing to poll.
		if db == nil {
			return
		}

		// Only alert on rows created after the stream opened.
		var lastSeenID uint
		var latest models.BudgetAlert
		if err := db.Order("id DESC").Limit(1).First(&latest).Error; err == nil {
			lastSeenID = latest.ID
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var newAlerts []models.BudgetAlert
				db.Where("id > ? AND status = ?", lastSeenID, alerts.StatusActive).
					Order("id ASC").
					Find(&newAlerts)

				if len(newAlerts) == 0 {
					continue
				}
				lastSeenID = newAlerts[len(newAlerts)-1].ID

				var activeCount int64
				db.Model(&models.BudgetAlert{}).
					Where("status = ?", alerts.StatusActive).
					Count(&activeCount)

				for i := range newAlerts {
					a := &newAlerts[i]
					writeSSE(c.Writer, "alert", alertEvent{
						ID:                  a.ID,
						TaskBudgetID:        a.TaskBudgetID,
						AlertType:           a.AlertType,
						Severity:            a.Severity,
						ThresholdPercentage: a.ThresholdPercentage,
						Title:               a.Title,
						ActiveCount:         activeCount,
					})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
