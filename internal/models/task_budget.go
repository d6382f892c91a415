package models

import "time"

// TaskBudget tracks allocated versus spent money for a single task
// within a project or monitoring plan. Remaining is always recomputed
// as allocated minus spent; the stored column is a convenience copy.
type TaskBudget struct {
	ID        string `gorm:"primaryKey;size:36"`
	TaskID    string `gorm:"size:64;index;not null"`
	TaskName  string `gorm:"not null"`
	ProjectID string `gorm:"size:36;index;not null"`
	PlanID    string `gorm:"size:36;index"`

	AllocatedCents int64 `gorm:"not null"`
	SpentCents     int64 `gorm:"default:0"`
	RemainingCents int64 `gorm:"default:0"`

	LaborCents          int64 `gorm:"default:0"`
	TransportationCents int64 `gorm:"default:0"`
	MaterialsCents      int64 `gorm:"default:0"`
	OtherCents          int64 `gorm:"default:0"`

	PlannedStart *time.Time
	PlannedEnd   *time.Time
	ActualStart  *time.Time
	ActualEnd    *time.Time

	EstimatedHours float64 `gorm:"default:0"`
	ActualHours    float64 `gorm:"default:0"`

	// Variance holds the derived variance snapshot as JSON. It is
	// written by internal/budget on every mutation, never read back
	// as source of truth.
	Variance string `gorm:"type:json"`

	Status     string `gorm:"size:16;default:draft;index"`
	Priority   string `gorm:"size:16;default:medium"`
	AssignedTo string `gorm:"size:64"`
	CreatedBy  string `gorm:"size:64"`
	ApprovedBy string `gorm:"size:64"`
	ApprovedAt *time.Time
	Notes      string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Transactions []BudgetTransaction `gorm:"foreignKey:TaskBudgetID"`
}

// BudgetTransaction is an immutable ledger entry for a budget mutation.
type BudgetTransaction struct {
	ID           string `gorm:"primaryKey;size:36"`
	TaskBudgetID string `gorm:"size:36;index;not null"`
	Type         string `gorm:"size:16;default:spend"`
	AmountCents  int64  `gorm:"not null"`
	Category     string `gorm:"size:24"`
	Description  string `gorm:"type:text"`
	ReferenceID  string `gorm:"size:64"`
	// Balance columns record remaining cents before and after the
	// transaction was applied.
	BalanceBeforeCents int64
	BalanceAfterCents  int64
	CreatedBy          string `gorm:"size:64"`
	CreatedAt          time.Time
}
