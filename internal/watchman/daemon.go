// Package watchman runs the background monitoring daemon: periodic
// auto-release scans, budget threshold sweeps, visit deadline
// reminders, and a cron-scheduled daily digest.
package watchman

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

const defaultPollInterval = 60 * time.Second

// Daemon holds the state of one watchman run.
type Daemon struct {
	db       *gorm.DB
	cfg      *config.Config
	trigger  *notify.Trigger
	notifier *alerts.Notifier
	scanner  *autorelease.Scanner
	channels []notify.SideChannel
	out      io.Writer

	// scanMu serializes auto-release scans so a slow pass and the
	// next tick never overlap.
	scanMu sync.Mutex

	// reminded tracks visits already reminded this run, so a visit
	// inside the reminder window gets one reminder per daemon
	// lifetime rather than one per poll.
	remindMu sync.Mutex
	reminded map[string]bool

	now func() time.Time
}

// RunDaemon runs the watchman loop until the context is cancelled.
// Each poll runs the auto-release scan, the budget threshold sweep,
// and the visit reminder pass; phase errors are logged and the loop
// continues. The daily digest fires on its own cron schedule.
func RunDaemon(ctx context.Context, db *gorm.DB, cfg *config.Config, trigger *notify.Trigger, channels []notify.SideChannel, out io.Writer) error {
	if db == nil {
		return fmt.Errorf("watchman: db is required")
	}
	if cfg == nil {
		return fmt.Errorf("watchman: config is required")
	}
	if trigger == nil {
		return fmt.Errorf("watchman: notify trigger is required")
	}
	if out == nil {
		out = io.Discard
	}

	pollInterval := time.Duration(cfg.Scanner.PollIntervalSec) * time.Second
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	d := &Daemon{
		db:       db,
		cfg:      cfg,
		trigger:  trigger,
		notifier: alerts.NewNotifier(db, trigger),
		scanner:  autorelease.NewScanner(db, trigger, cfg.Scanner.BatchLimit),
		channels: channels,
		out:      out,
		reminded: make(map[string]bool),
		now:      time.Now,
	}

	fmt.Fprintf(out, "Watchman daemon starting (poll every %s)...\n", pollInterval)

	if cfg.Scanner.DigestCron != "" {
		go d.runDigestLoop(ctx)
	}

	defer fmt.Fprintf(out, "Watchman stopped.\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Phase 1: Release expired unconfirmed assignments.
		if err := d.runScan(); err != nil {
			log.Printf("watchman scan error: %v", err)
		}

		// Phase 2: Sweep budgets for newly crossed thresholds.
		if err := d.sweepThresholds(); err != nil {
			log.Printf("watchman threshold sweep error: %v", err)
		}

		// Phase 3: Remind assignees of approaching visit deadlines.
		if err := d.sendReminders(); err != nil {
			log.Printf("watchman reminder error: %v", err)
		}

		sleepWithContext(ctx, pollInterval)
	}
}

// runScan executes one auto-release pass under the scan mutex.
func (d *Daemon) runScan() error {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	res, err := d.scanner.Process()
	if err != nil {
		return err
	}
	if res.Processed > 0 {
		fmt.Fprintf(d.out, "Auto-release: %d/%d visits released (%d errors)\n",
			res.Released, res.Processed, res.Errors)
	}
	return nil
}

// sweepThresholds runs the threshold check across every budget still
// accumulating spend. A failure on one budget does not stop the sweep.
func (d *Daemon) sweepThresholds() error {
	var ids []string
	err := d.db.Model(&models.TaskBudget{}).
		Where("status IN ?", []string{budget.BudgetActive, budget.BudgetExceeded}).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("watchman: list budgets: %w", err)
	}

	for _, id := range ids {
		if err := d.notifier.CheckAndTrigger(id); err != nil {
			log.Printf("watchman: threshold check %s: %v", id, err)
		}
	}
	return nil
}

// sendReminders notifies assignees whose visit deadline falls within
// the reminder window. Each visit is reminded at most once per run.
func (d *Daemon) sendReminders() error {
	now := d.now()
	cutoff := now.Add(time.Duration(d.cfg.Scanner.ReminderHours) * time.Hour)

	var visits []models.SiteVisit
	err := d.db.
		Where("assigned_to <> '' AND completed_at IS NULL").
		Where("visit_deadline IS NOT NULL AND visit_deadline <= ?", cutoff).
		Find(&visits).Error
	if err != nil {
		return fmt.Errorf("watchman: list upcoming visits: %w", err)
	}

	for i := range visits {
		v := &visits[i]

		d.remindMu.Lock()
		seen := d.reminded[v.ID]
		if !seen {
			d.reminded[v.ID] = true
		}
		d.remindMu.Unlock()
		if seen {
			continue
		}

		hoursLeft := int(v.VisitDeadline.Sub(now).Hours())
		d.trigger.VisitReminder(v.AssignedTo, v.SiteName, hoursLeft, v.ID)
	}
	return nil
}

// runDigestLoop fires the daily digest on the configured cron schedule.
func (d *Daemon) runDigestLoop(ctx context.Context) {
	wait := nextCronDuration(d.cfg.Scanner.DigestCron)
	if wait <= 0 {
		log.Printf("watchman: invalid digest cron %q, digest disabled", d.cfg.Scanner.DigestCron)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := d.fireDigest(); err != nil {
				log.Printf("watchman digest error: %v", err)
			}
			if next := nextCronDuration(d.cfg.Scanner.DigestCron); next > 0 {
				timer.Reset(next)
			} else {
				return
			}
		}
	}
}

// sleepWithContext sleeps for duration d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
