package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pactops/fieldops/internal/models"
	"gorm.io/gorm"
)

// Budget lifecycle statuses.
const (
	BudgetDraft     = "draft"
	BudgetActive    = "active"
	BudgetCompleted = "completed"
	BudgetExceeded  = "exceeded"
	BudgetOnHold    = "on_hold"
)

// Spend categories. The breakdown is a fixed four-way split.
const (
	CategoryLabor          = "labor"
	CategoryTransportation = "transportation"
	CategoryMaterials      = "materials"
	CategoryOther          = "other"
)

// ErrNotFound is returned when a budget does not exist.
var ErrNotFound = errors.New("budget not found")

// InsufficientBudgetError reports a spend that would drive remaining
// negative on a budget that has not been approved for overage. It
// carries the shortfall for the approval workflow.
type InsufficientBudgetError struct {
	BudgetID       string
	RequestedCents int64
	AvailableCents int64
	ShortfallCents int64
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("budget: insufficient funds on %s: requested %d, available %d (shortfall %d)",
		e.BudgetID, e.RequestedCents, e.AvailableCents, e.ShortfallCents)
}

// ThresholdAlerter receives the best-effort side effect when a spend
// pushes utilization past the alert threshold. Implementations must
// not assume their errors abort the spend.
type ThresholdAlerter interface {
	UtilizationCrossed(budget *models.TaskBudget, utilizationPct float64, actor string) error
}

// CreateOpts holds parameters for creating a new task budget.
type CreateOpts struct {
	TaskID         string
	TaskName       string
	ProjectID      string
	PlanID         string
	AllocatedCents int64
	PlannedStart   *time.Time
	PlannedEnd     *time.Time
	EstimatedHours float64
	Priority       string // low, medium, high, critical
	AssignedTo     string
	Notes          string
}

// Create creates a new task budget in draft status with nothing spent.
func Create(db *gorm.DB, opts CreateOpts, createdBy string) (*models.TaskBudget, error) {
	if opts.TaskID == "" {
		return nil, fmt.Errorf("budget: task id is required")
	}
	if opts.TaskName == "" {
		return nil, fmt.Errorf("budget: task name is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("budget: project id is required")
	}
	if opts.AllocatedCents <= 0 {
		return nil, fmt.Errorf("budget: allocated amount must be positive")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}

	variance, err := marshalVariance(Calculate(VarianceInput{
		AllocatedCents: opts.AllocatedCents,
		PlannedStart:   opts.PlannedStart,
		PlannedEnd:     opts.PlannedEnd,
	}))
	if err != nil {
		return nil, err
	}

	b := models.TaskBudget{
		ID:             uuid.NewString(),
		TaskID:         opts.TaskID,
		TaskName:       opts.TaskName,
		ProjectID:      opts.ProjectID,
		PlanID:         opts.PlanID,
		AllocatedCents: opts.AllocatedCents,
		RemainingCents: opts.AllocatedCents,
		PlannedStart:   opts.PlannedStart,
		PlannedEnd:     opts.PlannedEnd,
		EstimatedHours: opts.EstimatedHours,
		Variance:       variance,
		Status:         BudgetDraft,
		Priority:       opts.Priority,
		AssignedTo:     opts.AssignedTo,
		CreatedBy:      createdBy,
		Notes:          opts.Notes,
	}

	if err := db.Create(&b).Error; err != nil {
		return nil, fmt.Errorf("budget: create: %w", err)
	}
	return &b, nil
}

// Get retrieves a task budget by ID.
func Get(db *gorm.DB, id string) (*models.TaskBudget, error) {
	var b models.TaskBudget
	if err := db.Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("budget: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("budget: get %s: %w", id, err)
	}
	return &b, nil
}

// ListProject returns all task budgets for a project, newest first.
func ListProject(db *gorm.DB, projectID string) ([]models.TaskBudget, error) {
	var budgets []models.TaskBudget
	if err := db.Where("project_id = ?", projectID).
		Order("created_at DESC").Find(&budgets).Error; err != nil {
		return nil, fmt.Errorf("budget: list project %s: %w", projectID, err)
	}
	return budgets, nil
}

// ListPlan returns all task budgets for a monitoring plan, newest first.
func ListPlan(db *gorm.DB, planID string) ([]models.TaskBudget, error) {
	var budgets []models.TaskBudget
	if err := db.Where("plan_id = ?", planID).
		Order("created_at DESC").Find(&budgets).Error; err != nil {
		return nil, fmt.Errorf("budget: list plan %s: %w", planID, err)
	}
	return budgets, nil
}

// Transactions returns a budget's ledger entries, newest first,
// capped at limit when limit > 0.
func Transactions(db *gorm.DB, budgetID string, limit int) ([]models.BudgetTransaction, error) {
	q := db.Where("task_budget_id = ?", budgetID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txns []models.BudgetTransaction
	if err := q.Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("budget: transactions of %s: %w", budgetID, err)
	}
	return txns, nil
}

// UpdateOpts holds optional fields for updating a task budget. Nil
// pointers leave the stored value unchanged.
type UpdateOpts struct {
	AllocatedCents *int64
	PlannedStart   *time.Time
	PlannedEnd     *time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	Status         *string
	Priority       *string
	AssignedTo     *string
	Notes          *string
}

// Update applies a partial update and recomputes remaining and the
// variance snapshot. The previous spent amount feeds trend detection.
func Update(db *gorm.DB, id string, opts UpdateOpts, updatedBy string) (*models.TaskBudget, error) {
	b, err := Get(db, id)
	if err != nil {
		return nil, err
	}

	if opts.AllocatedCents != nil {
		b.AllocatedCents = *opts.AllocatedCents
	}
	if opts.PlannedStart != nil {
		b.PlannedStart = opts.PlannedStart
	}
	if opts.PlannedEnd != nil {
		b.PlannedEnd = opts.PlannedEnd
	}
	if opts.ActualStart != nil {
		b.ActualStart = opts.ActualStart
	}
	if opts.ActualEnd != nil {
		b.ActualEnd = opts.ActualEnd
	}
	if opts.EstimatedHours != nil {
		b.EstimatedHours = *opts.EstimatedHours
	}
	if opts.ActualHours != nil {
		b.ActualHours = *opts.ActualHours
	}
	if opts.Status != nil {
		b.Status = *opts.Status
	}
	if opts.Priority != nil {
		b.Priority = *opts.Priority
	}
	if opts.AssignedTo != nil {
		b.AssignedTo = *opts.AssignedTo
	}
	if opts.Notes != nil {
		b.Notes = *opts.Notes
	}

	b.RemainingCents = b.AllocatedCents - b.SpentCents

	previousSpent := b.SpentCents
	variance, err := marshalVariance(Calculate(VarianceInput{
		AllocatedCents:     b.AllocatedCents,
		SpentCents:         b.SpentCents,
		PlannedStart:       b.PlannedStart,
		PlannedEnd:         b.PlannedEnd,
		ActualStart:        b.ActualStart,
		ActualEnd:          b.ActualEnd,
		EstimatedHours:     b.EstimatedHours,
		ActualHours:        b.ActualHours,
		PreviousSpentCents: &previousSpent,
	}))
	if err != nil {
		return nil, err
	}
	b.Variance = variance

	if err := db.Model(&models.TaskBudget{}).Where("id = ?", id).Updates(map[string]interface{}{
		"allocated_cents": b.AllocatedCents,
		"remaining_cents": b.RemainingCents,
		"planned_start":   b.PlannedStart,
		"planned_end":     b.PlannedEnd,
		"actual_start":    b.ActualStart,
		"actual_end":      b.ActualEnd,
		"estimated_hours": b.EstimatedHours,
		"actual_hours":    b.ActualHours,
		"variance":        b.Variance,
		"status":          b.Status,
		"priority":        b.Priority,
		"assigned_to":     b.AssignedTo,
		"notes":           b.Notes,
	}).Error; err != nil {
		return nil, fmt.Errorf("budget: update %s: %w", id, err)
	}

	return b, nil
}

// SpendOpts holds parameters for recording a spend.
type SpendOpts struct {
	BudgetID    string
	AmountCents int64
	Category    string
	Description string
	ReferenceID string
}

// SpendResult reports the outcome of a successful spend.
type SpendResult struct {
	Budget         *models.TaskBudget
	Transaction    *models.BudgetTransaction
	UtilizationPct float64
	AlertTriggered bool
}

// utilizationAlertPct is the utilization percentage at which a spend
// trips the threshold alerter.
const utilizationAlertPct = 80

// RecordSpend applies a signed spend amount to a budget.
//
// A spend that would drive remaining negative fails with
// InsufficientBudgetError unless the budget already carries the
// exceeded status (the first overage requires approval; later
// postings against an approved overage proceed). The budget update is
// conditional on the spent amount read at the start, retried once on
// a concurrent change. The transaction row and the threshold alert
// are side effects: their failures are logged, never propagated.
func RecordSpend(db *gorm.DB, opts SpendOpts, actor string, alerter ThresholdAlerter) (*SpendResult, error) {
	if !validCategory(opts.Category) {
		return nil, fmt.Errorf("budget: unknown category %q", opts.Category)
	}

	for attempt := 0; ; attempt++ {
		res, retry, err := recordSpendOnce(db, opts, actor, alerter)
		if err == nil || !retry || attempt >= 1 {
			return res, err
		}
	}
}

func recordSpendOnce(db *gorm.DB, opts SpendOpts, actor string, alerter ThresholdAlerter) (*SpendResult, bool, error) {
	b, err := Get(db, opts.BudgetID)
	if err != nil {
		return nil, false, err
	}

	newSpent := b.SpentCents + opts.AmountCents
	newRemaining := b.AllocatedCents - newSpent
	utilization := UtilizationPct(b.AllocatedCents, newSpent)

	if newRemaining < 0 && b.Status != BudgetExceeded {
		return nil, false, &InsufficientBudgetError{
			BudgetID:       b.ID,
			RequestedCents: opts.AmountCents,
			AvailableCents: b.RemainingCents,
			ShortfallCents: opts.AmountCents - b.RemainingCents,
		}
	}

	previousSpent := b.SpentCents
	variance, err := marshalVariance(Calculate(VarianceInput{
		AllocatedCents:     b.AllocatedCents,
		SpentCents:         newSpent,
		PlannedStart:       b.PlannedStart,
		PlannedEnd:         b.PlannedEnd,
		ActualStart:        b.ActualStart,
		ActualEnd:          b.ActualEnd,
		EstimatedHours:     b.EstimatedHours,
		ActualHours:        b.ActualHours,
		PreviousSpentCents: &previousSpent,
	}))
	if err != nil {
		return nil, false, err
	}

	newStatus := b.Status
	if newRemaining < 0 {
		newStatus = BudgetExceeded
	}

	updates := map[string]interface{}{
		"spent_cents":     newSpent,
		"remaining_cents": newRemaining,
		"variance":        variance,
		"status":          newStatus,
	}
	updates[categoryColumn(opts.Category)] = gorm.Expr(categoryColumn(opts.Category)+" + ?", opts.AmountCents)

	// Conditional on the spent amount we read: a concurrent spend
	// changes it and forces a reread instead of a lost update.
	result := db.Model(&models.TaskBudget{}).
		Where("id = ? AND spent_cents = ?", b.ID, previousSpent).
		Updates(updates)
	if result.Error != nil {
		return nil, false, fmt.Errorf("budget: record spend on %s: %w", b.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, true, fmt.Errorf("budget: concurrent spend on %s", b.ID)
	}

	tx := models.BudgetTransaction{
		ID:                 uuid.NewString(),
		TaskBudgetID:       b.ID,
		Type:               "spend",
		AmountCents:        opts.AmountCents,
		Category:           opts.Category,
		Description:        opts.Description,
		ReferenceID:        opts.ReferenceID,
		BalanceBeforeCents: b.RemainingCents,
		BalanceAfterCents:  newRemaining,
		CreatedBy:          actor,
	}
	if err := db.Create(&tx).Error; err != nil {
		log.Printf("budget: transaction record for %s failed: %v", b.ID, err)
	}

	prevStatus := varianceStatus(b.Variance)
	b.SpentCents = newSpent
	b.RemainingCents = newRemaining
	b.Variance = variance
	b.Status = newStatus
	addToBreakdown(b, opts.Category, opts.AmountCents)

	alertTriggered := false
	if utilization >= utilizationAlertPct && prevStatus != StatusCritical && alerter != nil {
		if err := alerter.UtilizationCrossed(b, utilization, actor); err != nil {
			log.Printf("budget: threshold alert for %s failed: %v", b.ID, err)
		} else {
			alertTriggered = true
		}
	}

	return &SpendResult{
		Budget:         b,
		Transaction:    &tx,
		UtilizationPct: utilization,
		AlertTriggered: alertTriggered,
	}, false, nil
}

// RestrictionResult reports whether a prospective spend is allowed.
type RestrictionResult struct {
	Allowed          bool
	Reason           string
	RequiresApproval bool

	AllocatedCents  int64
	SpentCents      int64
	RemainingCents  int64
	UtilizationPct  float64
	RequestedCents  int64
	ShortfallCents  int64
	ProjectedPct    float64
}

// CheckRestriction evaluates a prospective spend without applying it.
func CheckRestriction(db *gorm.DB, budgetID string, requestedCents int64) (*RestrictionResult, error) {
	b, err := Get(db, budgetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &RestrictionResult{
				Reason:         "budget not found",
				RequestedCents: requestedCents,
				ShortfallCents: requestedCents,
			}, nil
		}
		return nil, err
	}

	projectedSpent := b.SpentCents + requestedCents
	projectedPct := UtilizationPct(b.AllocatedCents, projectedSpent)
	shortfall := requestedCents - b.RemainingCents
	if shortfall < 0 {
		shortfall = 0
	}

	r := &RestrictionResult{
		AllocatedCents: b.AllocatedCents,
		SpentCents:     b.SpentCents,
		RemainingCents: b.RemainingCents,
		UtilizationPct: UtilizationPct(b.AllocatedCents, b.SpentCents),
		RequestedCents: requestedCents,
		ShortfallCents: shortfall,
		ProjectedPct:   projectedPct,
	}

	switch {
	case b.AllocatedCents-projectedSpent < 0:
		r.Reason = fmt.Sprintf("transaction would exceed budget by %d cents", shortfall)
		r.RequiresApproval = true
	case projectedPct >= utilizationAlertPct:
		r.Allowed = true
		r.Reason = fmt.Sprintf("warning: budget will reach %.1f%% utilization", projectedPct)
	default:
		r.Allowed = true
		r.Reason = "within budget limits"
	}
	return r, nil
}

// marshalVariance serializes a variance snapshot for storage.
func marshalVariance(v Variance) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("budget: marshal variance: %w", err)
	}
	return string(data), nil
}

// UnmarshalVariance deserializes a stored variance snapshot. An empty
// column yields the zero-spend defaults.
func UnmarshalVariance(s string) (Variance, error) {
	if s == "" {
		return Variance{CostPerformanceIndex: 1, Status: StatusOnBudget, Trend: TrendStable}, nil
	}
	var v Variance
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Variance{}, fmt.Errorf("budget: unmarshal variance: %w", err)
	}
	return v, nil
}

// varianceStatus extracts the stored variance status, defaulting to
// on_budget when the column is empty or unreadable.
func varianceStatus(s string) string {
	v, err := UnmarshalVariance(s)
	if err != nil {
		return StatusOnBudget
	}
	return v.Status
}

func validCategory(c string) bool {
	switch c {
	case CategoryLabor, CategoryTransportation, CategoryMaterials, CategoryOther:
		return true
	}
	return false
}

func categoryColumn(c string) string {
	switch c {
	case CategoryLabor:
		return "labor_cents"
	case CategoryTransportation:
		return "transportation_cents"
	case CategoryMaterials:
		return "materials_cents"
	default:
		return "other_cents"
	}
}

func addToBreakdown(b *models.TaskBudget, category string, amount int64) {
	switch category {
	case CategoryLabor:
		b.LaborCents += amount
	case CategoryTransportation:
		b.TransportationCents += amount
	case CategoryMaterials:
		b.MaterialsCents += amount
	default:
		b.OtherCents += amount
	}
}
