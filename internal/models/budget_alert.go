package models

import "time"

// BudgetAlert marks that a budget crossed a utilization threshold.
// At most one active-or-acknowledged alert may exist per
// (task_budget_id, threshold_percentage) pair; the alerts package
// enforces this by querying before insert.
type BudgetAlert struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	TaskBudgetID        string `gorm:"size:36;index;not null"`
	AlertType           string `gorm:"size:24;not null"`
	Severity            string `gorm:"size:16;default:info"`
	ThresholdPercentage int    `gorm:"not null"`
	Title               string `gorm:"not null"`
	Message             string `gorm:"type:text"`
	Status              string `gorm:"size:16;default:active;index"`
	AcknowledgedBy      string `gorm:"size:64"`
	AcknowledgedAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
