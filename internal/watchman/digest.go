package watchman

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

// DailyReport aggregates the last 24 hours of monitoring activity.
type DailyReport struct {
	NewAlerts       int64
	ReleasedVisits  int64
	OverdueVisits   int64
	ExceededBudgets int64
}

// Empty reports whether the digest has nothing worth sending.
func (r DailyReport) Empty() bool {
	return r.NewAlerts == 0 && r.ReleasedVisits == 0 && r.OverdueVisits == 0 && r.ExceededBudgets == 0
}

// BuildDailyReport collects digest counts for the 24 hours before now.
func BuildDailyReport(db *gorm.DB, now time.Time) (DailyReport, error) {
	since := now.Add(-24 * time.Hour)
	var r DailyReport

	err := db.Model(&models.BudgetAlert{}).
		Where("created_at >= ?", since).
		Count(&r.NewAlerts).Error
	if err != nil {
		return r, fmt.Errorf("watchman: count alerts: %w", err)
	}

	err = db.Model(&models.SiteVisit{}).
		Where("confirmation_status = ? AND auto_release_executed >= ?",
			autorelease.ConfirmationAutoReleased, since).
		Count(&r.ReleasedVisits).Error
	if err != nil {
		return r, fmt.Errorf("watchman: count released visits: %w", err)
	}

	err = db.Model(&models.SiteVisit{}).
		Where("completed_at IS NULL AND visit_deadline IS NOT NULL AND visit_deadline < ?", now).
		Count(&r.OverdueVisits).Error
	if err != nil {
		return r, fmt.Errorf("watchman: count overdue visits: %w", err)
	}

	err = db.Model(&models.TaskBudget{}).
		Where("status = ?", budget.BudgetExceeded).
		Count(&r.ExceededBudgets).Error
	if err != nil {
		return r, fmt.Errorf("watchman: count exceeded budgets: %w", err)
	}

	return r, nil
}

// Body renders the digest as a plain-text summary.
func (r DailyReport) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "New budget alerts: %d\n", r.NewAlerts)
	fmt.Fprintf(&b, "Visits auto-released: %d\n", r.ReleasedVisits)
	fmt.Fprintf(&b, "Visits overdue: %d\n", r.OverdueVisits)
	fmt.Fprintf(&b, "Budgets exceeded: %d\n", r.ExceededBudgets)
	return b.String()
}

// fireDigest posts the daily report to every side channel. An empty
// report is suppressed entirely.
func (d *Daemon) fireDigest() error {
	report, err := BuildDailyReport(d.db, d.now())
	if err != nil {
		return err
	}
	if report.Empty() {
		log.Printf("watchman: digest empty, skipping")
		return nil
	}

	title := fmt.Sprintf("Daily Operations Digest (%s)", d.now().Format("2006-01-02"))
	severity := "info"
	if report.ExceededBudgets > 0 {
		severity = "warning"
	}

	for _, ch := range d.channels {
		if err := ch.Post(title, report.Body(), severity); err != nil {
			log.Printf("watchman: digest post to %s: %v", ch.Name(), err)
		}
	}
	fmt.Fprintf(d.out, "Daily digest sent to %d channels\n", len(d.channels))

	if report.NewAlerts > 0 {
		opts := notify.Options{
			Title:    title,
			Message:  report.Body(),
			Type:     notify.TypeInfo,
			Category: notify.CategorySystem,
			Priority: notify.PriorityLow,
		}
		if _, err := d.trigger.SendToRoles([]string{alerts.RoleSeniorOperationsLead}, opts, ""); err != nil {
			log.Printf("watchman: digest notify: %v", err)
		}
	}
	return nil
}
