// Package visits manages site visit records and assignments.
package visits

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

// Visit statuses.
const (
	StatusDispatched = "dispatched"
	StatusAssigned   = "assigned"
	StatusClaimed    = "claimed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// CreateOpts holds parameters for creating a site visit.
type CreateOpts struct {
	SiteName      string
	ProjectID     string
	PlanID        string
	VisitDeadline *time.Time
}

// Create registers a new unassigned visit in dispatched status.
func Create(db *gorm.DB, opts CreateOpts) (*models.SiteVisit, error) {
	if opts.SiteName == "" {
		return nil, fmt.Errorf("visits: site name is required")
	}

	v := models.SiteVisit{
		ID:                 uuid.NewString(),
		SiteName:           opts.SiteName,
		ProjectID:          opts.ProjectID,
		PlanID:             opts.PlanID,
		Status:             StatusDispatched,
		ConfirmationStatus: autorelease.ConfirmationPending,
		VisitDeadline:      opts.VisitDeadline,
	}
	if err := db.Create(&v).Error; err != nil {
		return nil, fmt.Errorf("visits: create: %w", err)
	}
	return &v, nil
}

// Assign gives a visit to a collector and opens the confirmation
// window. The visit must not already have an assignee.
func Assign(db *gorm.DB, trigger *notify.Trigger, visitID, userID string, confirmWindow time.Duration) (*models.SiteVisit, error) {
	var v models.SiteVisit
	if err := db.Where("id = ?", visitID).First(&v).Error; err != nil {
		return nil, fmt.Errorf("visits: get %s: %w", visitID, err)
	}
	if v.AssignedTo != "" {
		return nil, fmt.Errorf("visits: %s already assigned to %s", visitID, v.AssignedTo)
	}

	now := time.Now()
	releaseAt := now.Add(confirmWindow)
	err := db.Model(&models.SiteVisit{}).
		Where("id = ? AND assigned_to = ''", visitID).
		Updates(map[string]interface{}{
			"status":                 StatusAssigned,
			"assigned_to":            userID,
			"assigned_at":            &now,
			"confirmation_status":    autorelease.ConfirmationPending,
			"auto_release_at":        &releaseAt,
			"auto_release_triggered": false,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("visits: assign %s: %w", visitID, err)
	}

	v.Status = StatusAssigned
	v.AssignedTo = userID
	v.AssignedAt = &now
	v.AutoReleaseAt = &releaseAt

	if trigger != nil {
		trigger.SiteAssigned(userID, v.SiteName, v.ID)
	}
	return &v, nil
}

// Get loads one visit.
func Get(db *gorm.DB, id string) (*models.SiteVisit, error) {
	var v models.SiteVisit
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, fmt.Errorf("visits: get %s: %w", id, err)
	}
	return &v, nil
}

// List returns visits filtered by status and assignee, newest first.
func List(db *gorm.DB, status, assignee string) ([]models.SiteVisit, error) {
	q := db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if assignee != "" {
		q = q.Where("assigned_to = ?", assignee)
	}
	var out []models.SiteVisit
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("visits: list: %w", err)
	}
	return out, nil
}

// Complete marks an assigned visit as done.
func Complete(db *gorm.DB, visitID, userID string) error {
	now := time.Now()
	res := db.Model(&models.SiteVisit{}).
		Where("id = ? AND assigned_to = ?", visitID, userID).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("visits: complete %s: %w", visitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("visits: complete %s: not assigned to %s", visitID, userID)
	}
	return nil
}
