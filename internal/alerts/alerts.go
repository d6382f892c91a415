// Package alerts decides when a budget's utilization warrants an
// alert record and fans notifications out to the responsible roles.
package alerts

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

// Application roles involved in budget oversight.
const (
	RoleProjectManager       = "ProjectManager"
	RoleSeniorOperationsLead = "SeniorOperationsLead"
	RoleFinancialAdmin       = "FinancialAdmin"
	RoleAdmin                = "Admin"
	RoleSuperAdmin           = "SuperAdmin"
)

// financeApproverRoles is the role set allowed to approve over-budget
// spend requests.
var financeApproverRoles = []string{
	RoleFinancialAdmin,
	RoleAdmin,
	RoleSuperAdmin,
	RoleSeniorOperationsLead,
}

// Alert types.
const (
	TypeBudgetExceeded   = "budget_exceeded"
	TypeThresholdReached = "threshold_reached"
	TypeLowBudget        = "low_budget"
	TypeOverspending     = "overspending"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert statuses.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusDismissed    = "dismissed"
)

// Utilization thresholds, checked highest first.
const (
	thresholdExceeded = 100
	thresholdWarning  = 80
	thresholdLow      = 70
)

var alertTitles = map[string]string{
	TypeBudgetExceeded:   "Budget Exceeded",
	TypeThresholdReached: "80% Budget Threshold Reached",
	TypeLowBudget:        "Budget Running Low",
	TypeOverspending:     "Overspending Detected",
}

// Notifier creates threshold alerts and dispatches them. It also
// implements the spend-side utilization hook, so a *Notifier can be
// passed directly to budget.RecordSpend.
type Notifier struct {
	db      *gorm.DB
	trigger *notify.Trigger
	roles   notify.RoleDirectory
	teams   notify.TeamDirectory
}

// NewNotifier creates a Notifier. Role and team resolution default to
// the gorm-backed directory.
func NewNotifier(db *gorm.DB, trigger *notify.Trigger) *Notifier {
	dir := notify.NewDirectory(db)
	return &Notifier{db: db, trigger: trigger, roles: dir, teams: dir}
}

// UtilizationCrossed is the spend-side hook: a spend pushed the budget
// past the warning utilization, so run the full threshold check.
func (n *Notifier) UtilizationCrossed(b *models.TaskBudget, utilizationPct float64, actor string) error {
	return n.CheckAndTrigger(b.ID)
}

// CheckAndTrigger evaluates a budget against the alert thresholds and
// creates at most one alert: the highest applicable threshold that has
// no active or acknowledged alert yet. An exceeded budget therefore
// never also fires the 80% alert on the same check.
func (n *Notifier) CheckAndTrigger(budgetID string) error {
	b, err := budget.Get(n.db, budgetID)
	if err != nil {
		return fmt.Errorf("alerts: check %s: %w", budgetID, err)
	}
	if b.AllocatedCents == 0 {
		return nil
	}
	utilization := float64(b.SpentCents) / float64(b.AllocatedCents) * 100

	triggered, err := n.triggeredThresholds(budgetID)
	if err != nil {
		return err
	}

	switch {
	case utilization >= thresholdExceeded && !triggered[thresholdExceeded]:
		return n.createAndSend(b, TypeBudgetExceeded, SeverityCritical, thresholdExceeded, utilization)
	case utilization >= thresholdWarning && utilization < thresholdExceeded && !triggered[thresholdWarning]:
		return n.createAndSend(b, TypeThresholdReached, SeverityWarning, thresholdWarning, utilization)
	case utilization >= thresholdLow && utilization < thresholdWarning && !triggered[thresholdLow]:
		return n.createAndSend(b, TypeLowBudget, SeverityInfo, thresholdLow, utilization)
	}
	return nil
}

// triggeredThresholds returns the set of threshold percentages that
// already have an active or acknowledged alert for the budget.
func (n *Notifier) triggeredThresholds(budgetID string) (map[int]bool, error) {
	var pcts []int
	err := n.db.Model(&models.BudgetAlert{}).
		Where("task_budget_id = ? AND status IN ?", budgetID, []string{StatusActive, StatusAcknowledged}).
		Pluck("threshold_percentage", &pcts).Error
	if err != nil {
		return nil, fmt.Errorf("alerts: existing alerts for %s: %w", budgetID, err)
	}
	set := make(map[int]bool, len(pcts))
	for _, p := range pcts {
		set[p] = true
	}
	return set, nil
}

// createAndSend persists the alert row and fans out notifications for
// the alert types that warrant them. Fan-out failures are logged, not
// returned: the alert record is the source of truth.
func (n *Notifier) createAndSend(b *models.TaskBudget, alertType, severity string, threshold int, utilization float64) error {
	alert := models.BudgetAlert{
		TaskBudgetID:        b.ID,
		AlertType:           alertType,
		Severity:            severity,
		ThresholdPercentage: threshold,
		Title:               alertTitles[alertType],
		Message: fmt.Sprintf("Budget at %.1f%% utilization. Remaining: %s",
			utilization, dollars(b.RemainingCents)),
		Status: StatusActive,
	}
	if err := n.db.Create(&alert).Error; err != nil {
		return fmt.Errorf("alerts: create %s alert for %s: %w", alertType, b.ID, err)
	}

	projectName := n.projectName(b.ProjectID)

	switch {
	case alertType == TypeBudgetExceeded:
		if _, err := n.SendExceededAlert(b, projectName, utilization); err != nil {
			log.Printf("alerts: exceeded fan-out for %s: %v", b.ID, err)
		}
	case alertType == TypeThresholdReached && threshold == thresholdWarning:
		if _, err := n.SendThresholdAlert(b, projectName, utilization); err != nil {
			log.Printf("alerts: threshold fan-out for %s: %v", b.ID, err)
		}
	}
	return nil
}

// SendThresholdAlert notifies the oversight audience that a budget
// crossed 80% utilization. Returns the number of notifications sent.
func (n *Notifier) SendThresholdAlert(b *models.TaskBudget, projectName string, utilization float64) (int, error) {
	recipients, err := n.oversightRecipients(b.ProjectID)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		log.Printf("alerts: no recipients for threshold alert on %s", b.ID)
		return 0, nil
	}

	message := fmt.Sprintf(
		"Task %q in project %q has reached %.1f%% budget utilization. "+
			"Spent: %s / Budget: %s. Remaining: %s. Review and plan accordingly.",
		b.TaskName, projectName, utilization,
		dollars(b.SpentCents), dollars(b.AllocatedCents), dollars(b.RemainingCents))

	return n.trigger.SendBulk(recipients, notify.Options{
		Title:             "Budget 80% Threshold Alert",
		Message:           message,
		Type:              notify.TypeWarning,
		Category:          notify.CategoryFinancial,
		Priority:          notify.PriorityHigh,
		Link:              "/budget",
		RelatedEntityID:   b.ID,
		RelatedEntityType: "task_budget",
	}), nil
}

// SendExceededAlert notifies the oversight audience that a budget went
// over its allocation.
func (n *Notifier) SendExceededAlert(b *models.TaskBudget, projectName string, utilization float64) (int, error) {
	recipients, err := n.oversightRecipients(b.ProjectID)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	overspend := b.SpentCents - b.AllocatedCents
	message := fmt.Sprintf(
		"Task %q in project %q has exceeded its budget by %s (%.1f%% utilization). Immediate action required.",
		b.TaskName, projectName, dollars(overspend), utilization)

	return n.trigger.SendBulk(recipients, notify.Options{
		Title:             "CRITICAL: Budget Exceeded",
		Message:           message,
		Type:              notify.TypeError,
		Category:          notify.CategoryFinancial,
		Priority:          notify.PriorityUrgent,
		Link:              "/budget",
		RelatedEntityID:   b.ID,
		RelatedEntityType: "task_budget",
	}), nil
}

// EscalationRequest describes an over-budget spend awaiting override
// approval.
type EscalationRequest struct {
	ProjectName     string
	AmountCents     int64
	ShortfallCents  int64
	RequestedByName string
	Reason          string
}

// SendEscalation routes an over-budget approval request to the senior
// operations leads, falling back to the finance approver set when no
// senior lead exists.
func (n *Notifier) SendEscalation(req EscalationRequest) (int, error) {
	leads, err := n.roles.UsersWithRole(RoleSeniorOperationsLead)
	if err != nil {
		return 0, fmt.Errorf("alerts: escalation: %w", err)
	}

	if len(leads) == 0 {
		log.Printf("alerts: no senior operations leads found, escalating to finance approvers")
		approvers, err := n.roles.UsersWithAnyRole(financeApproverRoles)
		if err != nil {
			return 0, fmt.Errorf("alerts: escalation fallback: %w", err)
		}
		if len(approvers) == 0 {
			return 0, nil
		}
		message := fmt.Sprintf(
			"An expense of %s for %q requires approval. Budget shortfall: %s. Requested by: %s. Reason: %s",
			dollars(req.AmountCents), req.ProjectName, dollars(req.ShortfallCents),
			req.RequestedByName, req.Reason)
		return n.trigger.SendBulk(approvers, notify.Options{
			Title:    "Escalated: Over-Budget Approval Required",
			Message:  message,
			Type:     notify.TypeWarning,
			Category: notify.CategoryApprovals,
			Priority: notify.PriorityUrgent,
			Link:     "/finance-approval",
		}), nil
	}

	message := fmt.Sprintf(
		"An expense of %s for %q exceeds available budget. Shortfall: %s. Submitted by: %s. Reason: %s. Your override approval is required.",
		dollars(req.AmountCents), req.ProjectName, dollars(req.ShortfallCents),
		req.RequestedByName, req.Reason)
	return n.trigger.SendBulk(leads, notify.Options{
		Title:    "Escalated: Over-Budget Approval Required",
		Message:  message,
		Type:     notify.TypeWarning,
		Category: notify.CategoryApprovals,
		Priority: notify.PriorityUrgent,
		Link:     "/finance-approval",
	}), nil
}

// SendApprovalResult tells a requester whether their over-budget
// request was approved or rejected.
func (n *Notifier) SendApprovalResult(userID string, approved bool, amountCents int64, projectName, approverName string) (bool, error) {
	if approverName == "" {
		approverName = "Senior Operations Lead"
	}
	opts := notify.Options{
		Category: notify.CategoryFinancial,
		Priority: notify.PriorityHigh,
		Link:     "/cost-submission",
	}
	if approved {
		opts.Title = "Over-Budget Request Approved"
		opts.Message = fmt.Sprintf("Your expense request of %s for %q has been approved by %s.",
			dollars(amountCents), projectName, approverName)
		opts.Type = notify.TypeSuccess
	} else {
		opts.Title = "Over-Budget Request Rejected"
		opts.Message = fmt.Sprintf("Your expense request of %s for %q has been rejected. Please contact your supervisor for details.",
			dollars(amountCents), projectName)
		opts.Type = notify.TypeError
	}
	return n.trigger.Send(userID, opts)
}

// oversightRecipients returns the union of the project's managers, all
// senior operations leads, and the finance approver set.
func (n *Notifier) oversightRecipients(projectID string) ([]string, error) {
	set := make(map[string]bool)

	if projectID != "" {
		managers, err := n.teams.ProjectMembersWithRole(projectID, RoleProjectManager)
		if err != nil {
			return nil, fmt.Errorf("alerts: project managers: %w", err)
		}
		for _, id := range managers {
			set[id] = true
		}
	}

	leads, err := n.roles.UsersWithRole(RoleSeniorOperationsLead)
	if err != nil {
		return nil, fmt.Errorf("alerts: senior leads: %w", err)
	}
	for _, id := range leads {
		set[id] = true
	}

	approvers, err := n.roles.UsersWithAnyRole(financeApproverRoles)
	if err != nil {
		return nil, fmt.Errorf("alerts: finance approvers: %w", err)
	}
	for _, id := range approvers {
		set[id] = true
	}

	recipients := make([]string, 0, len(set))
	for id := range set {
		recipients = append(recipients, id)
	}
	return recipients, nil
}

// projectName looks up a project's display name, falling back to a
// placeholder when the row is missing.
func (n *Notifier) projectName(projectID string) string {
	if projectID == "" {
		return "Unknown Project"
	}
	var p models.Project
	if err := n.db.Where("id = ?", projectID).First(&p).Error; err != nil {
		return "Unknown Project"
	}
	return p.Name
}

// Acknowledge marks an active alert as acknowledged by the actor.
func Acknowledge(db *gorm.DB, alertID uint, actor string) error {
	now := time.Now()
	res := db.Model(&models.BudgetAlert{}).
		Where("id = ? AND status = ?", alertID, StatusActive).
		Updates(map[string]interface{}{
			"status":          StatusAcknowledged,
			"acknowledged_by": actor,
			"acknowledged_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("alerts: acknowledge %d: %w", alertID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alerts: acknowledge %d: no active alert", alertID)
	}
	return nil
}

// Resolve closes an alert regardless of its current state.
func Resolve(db *gorm.DB, alertID uint) error {
	res := db.Model(&models.BudgetAlert{}).
		Where("id = ? AND status IN ?", alertID, []string{StatusActive, StatusAcknowledged}).
		Update("status", StatusResolved)
	if res.Error != nil {
		return fmt.Errorf("alerts: resolve %d: %w", alertID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alerts: resolve %d: no open alert", alertID)
	}
	return nil
}

// ListForBudget returns a budget's alerts, newest first, optionally
// filtered by status.
func ListForBudget(db *gorm.DB, budgetID, status string) ([]models.BudgetAlert, error) {
	q := db.Where("task_budget_id = ?", budgetID).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.BudgetAlert
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("alerts: list for %s: %w", budgetID, err)
	}
	return out, nil
}

// dollars formats cents as a currency amount.
func dollars(cents int64) string {
	return fmt.Sprintf("%.2f USD", float64(cents)/100)
}
