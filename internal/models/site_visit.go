package models

import "time"

// SiteVisit is a scheduled visit to a monitoring site. Assignment
// confirmation follows a small state machine: pending → confirmed
// (collector action) or pending → auto_released (system action,
// terminal). AutoReleaseTriggered is the idempotency flag preventing
// a double release across overlapping scans.
type SiteVisit struct {
	ID         string `gorm:"primaryKey;size:36"`
	SiteName   string `gorm:"not null"`
	ProjectID  string `gorm:"size:36;index"`
	PlanID     string `gorm:"size:36;index"`
	Status     string `gorm:"size:16;default:dispatched;index"`
	AssignedTo string `gorm:"size:64;index"`
	AssignedAt *time.Time

	ConfirmationStatus   string `gorm:"size:16;default:pending"`
	AutoReleaseAt        *time.Time
	AutoReleaseTriggered bool `gorm:"default:false"`
	AutoReleaseExecuted  *time.Time
	FormerAssignee       string `gorm:"size:64"`

	VisitDeadline *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
