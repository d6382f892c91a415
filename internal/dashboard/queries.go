package dashboard

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/models"
)

// BudgetFilters narrows the budget list endpoint.
type BudgetFilters struct {
	ProjectID string
	PlanID    string
	Status    string
}

// BudgetRow is one budget in the list view, with the variance snapshot
// decoded for the client.
type BudgetRow struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"taskId"`
	TaskName       string          `json:"taskName"`
	ProjectID      string          `json:"projectId"`
	Status         string          `json:"status"`
	AllocatedCents int64           `json:"allocatedCents"`
	SpentCents     int64           `json:"spentCents"`
	RemainingCents int64           `json:"remainingCents"`
	UtilizationPct float64         `json:"utilizationPct"`
	Variance       budget.Variance `json:"variance"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// BudgetList returns budgets matching the filters, most recently
// updated first.
func BudgetList(db *gorm.DB, f BudgetFilters) ([]BudgetRow, error) {
	q := db.Model(&models.TaskBudget{}).Order("updated_at DESC")
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.PlanID != "" {
		q = q.Where("plan_id = ?", f.PlanID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var budgets []models.TaskBudget
	if err := q.Find(&budgets).Error; err != nil {
		return nil, fmt.Errorf("dashboard: list budgets: %w", err)
	}

	rows := make([]BudgetRow, 0, len(budgets))
	for i := range budgets {
		rows = append(rows, toBudgetRow(&budgets[i]))
	}
	return rows, nil
}

// BudgetDetail is the full view of one budget including its ledger.
type BudgetDetail struct {
	BudgetRow
	LaborCents          int64                      `json:"laborCents"`
	TransportationCents int64                      `json:"transportationCents"`
	MaterialsCents      int64                      `json:"materialsCents"`
	OtherCents          int64                      `json:"otherCents"`
	PlannedStart        *time.Time                 `json:"plannedStart,omitempty"`
	PlannedEnd          *time.Time                 `json:"plannedEnd,omitempty"`
	ActualStart         *time.Time                 `json:"actualStart,omitempty"`
	ActualEnd           *time.Time                 `json:"actualEnd,omitempty"`
	Transactions        []models.BudgetTransaction `json:"transactions"`
}

// GetBudgetDetail loads one budget with its transactions, newest
// transaction first.
func GetBudgetDetail(db *gorm.DB, id string) (*BudgetDetail, error) {
	b, err := budget.Get(db, id)
	if err != nil {
		return nil, err
	}

	var txns []models.BudgetTransaction
	if err := db.Where("task_budget_id = ?", id).
		Order("created_at DESC").
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("dashboard: budget %s transactions: %w", id, err)
	}

	return &BudgetDetail{
		BudgetRow:           toBudgetRow(b),
		LaborCents:          b.LaborCents,
		TransportationCents: b.TransportationCents,
		MaterialsCents:      b.MaterialsCents,
		OtherCents:          b.OtherCents,
		PlannedStart:        b.PlannedStart,
		PlannedEnd:          b.PlannedEnd,
		ActualStart:         b.ActualStart,
		ActualEnd:           b.ActualEnd,
		Transactions:        txns,
	}, nil
}

func toBudgetRow(b *models.TaskBudget) BudgetRow {
	v, _ := budget.UnmarshalVariance(b.Variance)
	return BudgetRow{
		ID:             b.ID,
		TaskID:         b.TaskID,
		TaskName:       b.TaskName,
		ProjectID:      b.ProjectID,
		Status:         b.Status,
		AllocatedCents: b.AllocatedCents,
		SpentCents:     b.SpentCents,
		RemainingCents: b.RemainingCents,
		UtilizationPct: budget.UtilizationPct(b.AllocatedCents, b.SpentCents),
		Variance:       v,
		UpdatedAt:      b.UpdatedAt,
	}
}

// AlertList returns alerts, newest first, optionally filtered by
// status and severity.
func AlertList(db *gorm.DB, status, severity string) ([]models.BudgetAlert, error) {
	q := db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	var rows []models.BudgetAlert
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dashboard: list alerts: %w", err)
	}
	return rows, nil
}

// UserNotifications returns a user's notifications, newest first.
func UserNotifications(db *gorm.DB, userID string, unreadOnly bool) ([]models.Notification, error) {
	q := db.Where("user_id = ?", userID).Order("created_at DESC").Limit(100)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var rows []models.Notification
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dashboard: notifications for %s: %w", userID, err)
	}
	return rows, nil
}

// VisitList returns site visits filtered by status and confirmation
// state.
func VisitList(db *gorm.DB, status, confirmation string) ([]models.SiteVisit, error) {
	q := db.Order("created_at DESC").Limit(200)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if confirmation != "" {
		q = q.Where("confirmation_status = ?", confirmation)
	}
	var rows []models.SiteVisit
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dashboard: list visits: %w", err)
	}
	return rows, nil
}
