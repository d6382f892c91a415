package watchman

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.TaskBudget{},
		&models.BudgetTransaction{},
		&models.BudgetAlert{},
		&models.SiteVisit{},
		&models.Notification{},
		&models.UserSettings{},
		&models.Profile{},
		&models.Project{},
		&models.ProjectMember{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func newTestDaemon(t *testing.T, db *gorm.DB, cfg *config.Config) *Daemon {
	t.Helper()
	trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: db})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	return &Daemon{
		db:       db,
		cfg:      cfg,
		trigger:  trigger,
		notifier: alerts.NewNotifier(db, trigger),
		scanner:  autorelease.NewScanner(db, trigger, 0),
		out:      &bytes.Buffer{},
		reminded: make(map[string]bool),
		now:      func() time.Time { return testNow },
	}
}

type fakeChannel struct {
	mu    sync.Mutex
	posts []fakePost
	err   error
}

type fakePost struct {
	title    string
	body     string
	severity string
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Post(title, body, severity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, fakePost{title, body, severity})
	return c.err
}

func TestNextCronDuration(t *testing.T) {
	if d := nextCronDuration("not a cron"); d != 0 {
		t.Errorf("invalid expression: duration = %v, want 0", d)
	}
	if d := nextCronDuration("0 8 * * *"); d <= 0 || d > 24*time.Hour {
		t.Errorf("daily schedule: duration = %v, want within 24h", d)
	}
	if d := nextCronDuration("* * * * *"); d <= 0 || d > time.Minute {
		t.Errorf("every minute: duration = %v, want within 1m", d)
	}
	// 6-field (with seconds) is not accepted.
	if d := nextCronDuration("0 0 8 * * *"); d != 0 {
		t.Errorf("six fields: duration = %v, want 0", d)
	}
}

func TestSleepWithContext_CancelReturnsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepWithContext(ctx, time.Minute)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleep did not return on cancel (took %v)", elapsed)
	}
}

func TestRunDaemon_Validation(t *testing.T) {
	db := openTestDB(t)
	trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: db})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	cfg := &config.Config{}
	ctx := context.Background()

	if err := RunDaemon(ctx, nil, cfg, trigger, nil, nil); err == nil {
		t.Error("expected error for nil db")
	}
	if err := RunDaemon(ctx, db, nil, trigger, nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if err := RunDaemon(ctx, db, cfg, nil, nil, nil); err == nil {
		t.Error("expected error for nil trigger")
	}
}

func TestRunDaemon_OnePassAndStop(t *testing.T) {
	db := openTestDB(t)
	trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: db})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	cfg := &config.Config{
		Scanner: config.ScannerConfig{PollIntervalSec: 3600},
	}

	// An expired assignment the first pass should release.
	visit := models.SiteVisit{
		ID:                 "v1",
		SiteName:           "Kondoa Well 3",
		Status:             "assigned",
		AssignedTo:         "officer-1",
		ConfirmationStatus: autorelease.ConfirmationPending,
		AutoReleaseAt:      timePtr(time.Now().Add(-time.Hour)),
	}
	if err := db.Create(&visit).Error; err != nil {
		t.Fatalf("seed visit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := RunDaemon(ctx, db, cfg, trigger, nil, &out); err != nil {
		t.Fatalf("run daemon: %v", err)
	}

	var stored models.SiteVisit
	db.First(&stored, "id = ?", "v1")
	if stored.ConfirmationStatus != autorelease.ConfirmationAutoReleased {
		t.Errorf("visit not released by first pass: %q", stored.ConfirmationStatus)
	}
	if !strings.Contains(out.String(), "Auto-release: 1/1") {
		t.Errorf("output missing scan summary:\n%s", out.String())
	}
}

func TestSweepThresholds_ChecksActiveBudgets(t *testing.T) {
	db := openTestDB(t)
	d := newTestDaemon(t, db, &config.Config{})

	seedBudget := func(id, status string, spent int64) {
		b := models.TaskBudget{
			ID:             id,
			TaskID:         "task-" + id,
			TaskName:       "task " + id,
			ProjectID:      "proj-1",
			AllocatedCents: 100_000,
			SpentCents:     spent,
			RemainingCents: 100_000 - spent,
			Status:         status,
		}
		if err := db.Create(&b).Error; err != nil {
			t.Fatalf("seed budget %s: %v", id, err)
		}
	}
	seedBudget("b-warm", budget.BudgetActive, 85_000)
	seedBudget("b-cool", budget.BudgetActive, 10_000)
	seedBudget("b-draft", budget.BudgetDraft, 95_000)

	if err := d.sweepThresholds(); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var alertRows []models.BudgetAlert
	if err := db.Find(&alertRows).Error; err != nil {
		t.Fatalf("load alerts: %v", err)
	}
	if len(alertRows) != 1 || alertRows[0].TaskBudgetID != "b-warm" {
		t.Errorf("alerts = %+v, want one for b-warm only (drafts are skipped)", alertRows)
	}
}

func TestSendReminders_OncePerVisit(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{Scanner: config.ScannerConfig{ReminderHours: 48}}
	d := newTestDaemon(t, db, cfg)

	soon := models.SiteVisit{
		ID:            "v-soon",
		SiteName:      "Kondoa Well 3",
		Status:        "assigned",
		AssignedTo:    "officer-1",
		VisitDeadline: timePtr(testNow.Add(10 * time.Hour)),
	}
	far := models.SiteVisit{
		ID:            "v-far",
		SiteName:      "Kondoa Well 4",
		Status:        "assigned",
		AssignedTo:    "officer-2",
		VisitDeadline: timePtr(testNow.Add(100 * time.Hour)),
	}
	done := models.SiteVisit{
		ID:            "v-done",
		SiteName:      "Kondoa Well 5",
		Status:        "completed",
		AssignedTo:    "officer-3",
		VisitDeadline: timePtr(testNow.Add(5 * time.Hour)),
		CompletedAt:   timePtr(testNow.Add(-time.Hour)),
	}
	for _, v := range []models.SiteVisit{soon, far, done} {
		if err := db.Create(&v).Error; err != nil {
			t.Fatalf("seed visit %s: %v", v.ID, err)
		}
	}

	if err := d.sendReminders(); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := d.sendReminders(); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	count := func(user string) int64 {
		var n int64
		db.Model(&models.Notification{}).Where("user_id = ?", user).Count(&n)
		return n
	}
	if got := count("officer-1"); got != 1 {
		t.Errorf("reminders to officer-1 = %d, want exactly 1 across passes", got)
	}
	if got := count("officer-2"); got != 0 {
		t.Errorf("officer-2 reminded outside the window")
	}
	if got := count("officer-3"); got != 0 {
		t.Errorf("completed visit reminded")
	}
}

func TestDailyReport_Empty(t *testing.T) {
	if !(DailyReport{}).Empty() {
		t.Error("zero report not empty")
	}
	if (DailyReport{NewAlerts: 1}).Empty() {
		t.Error("report with alerts considered empty")
	}
}

func TestBuildDailyReport(t *testing.T) {
	db := openTestDB(t)

	// Two alerts, one inside the 24h window.
	if err := db.Create(&models.BudgetAlert{TaskBudgetID: "b1", AlertType: "low_budget", ThresholdPercentage: 70, Title: "x", Status: "active", CreatedAt: testNow.Add(-2 * time.Hour)}).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	if err := db.Create(&models.BudgetAlert{TaskBudgetID: "b2", AlertType: "low_budget", ThresholdPercentage: 70, Title: "y", Status: "active", CreatedAt: testNow.Add(-48 * time.Hour)}).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	visits := []models.SiteVisit{
		{ID: "v-released", SiteName: "a", ConfirmationStatus: autorelease.ConfirmationAutoReleased, AutoReleaseExecuted: timePtr(testNow.Add(-3 * time.Hour))},
		{ID: "v-released-old", SiteName: "b", ConfirmationStatus: autorelease.ConfirmationAutoReleased, AutoReleaseExecuted: timePtr(testNow.Add(-30 * time.Hour))},
		{ID: "v-overdue", SiteName: "c", ConfirmationStatus: autorelease.ConfirmationPending, VisitDeadline: timePtr(testNow.Add(-time.Hour))},
	}
	for _, v := range visits {
		if err := db.Create(&v).Error; err != nil {
			t.Fatalf("seed visit %s: %v", v.ID, err)
		}
	}

	if err := db.Create(&models.TaskBudget{ID: "b1", TaskID: "t1", TaskName: "t", ProjectID: "p", AllocatedCents: 1, Status: budget.BudgetExceeded}).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	r, err := BuildDailyReport(db, testNow)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if r.NewAlerts != 1 || r.ReleasedVisits != 1 || r.OverdueVisits != 1 || r.ExceededBudgets != 1 {
		t.Errorf("report = %+v, want 1/1/1/1", r)
	}

	body := r.Body()
	for _, want := range []string{"New budget alerts: 1", "Visits auto-released: 1", "Visits overdue: 1", "Budgets exceeded: 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestFireDigest_EmptySkipsChannels(t *testing.T) {
	db := openTestDB(t)
	d := newTestDaemon(t, db, &config.Config{})
	ch := &fakeChannel{}
	d.channels = []notify.SideChannel{ch}

	if err := d.fireDigest(); err != nil {
		t.Fatalf("fire digest: %v", err)
	}
	if len(ch.posts) != 0 {
		t.Errorf("empty digest posted to channels")
	}
}

func TestFireDigest_PostsAndEscalatesSeverity(t *testing.T) {
	db := openTestDB(t)
	d := newTestDaemon(t, db, &config.Config{})
	ch := &fakeChannel{}
	d.channels = []notify.SideChannel{ch}

	if err := db.Create(&models.Profile{ID: "lead-1", Name: "Lead", Role: alerts.RoleSeniorOperationsLead, Active: true}).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	if err := db.Create(&models.BudgetAlert{TaskBudgetID: "b1", AlertType: "low_budget", ThresholdPercentage: 70, Title: "x", Status: "active", CreatedAt: testNow.Add(-time.Hour)}).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	if err := db.Create(&models.TaskBudget{ID: "b1", TaskID: "t1", TaskName: "t", ProjectID: "p", AllocatedCents: 1, Status: budget.BudgetExceeded}).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	if err := d.fireDigest(); err != nil {
		t.Fatalf("fire digest: %v", err)
	}

	if len(ch.posts) != 1 {
		t.Fatalf("channel posts = %d, want 1", len(ch.posts))
	}
	post := ch.posts[0]
	if !strings.Contains(post.title, "Daily Operations Digest (2026-05-01)") {
		t.Errorf("title = %q", post.title)
	}
	if post.severity != "warning" {
		t.Errorf("severity = %q, want warning when budgets are exceeded", post.severity)
	}

	// New alerts also land the digest in senior leads' inboxes.
	var n int64
	db.Model(&models.Notification{}).Where("user_id = ?", "lead-1").Count(&n)
	if n != 1 {
		t.Errorf("lead notifications = %d, want 1", n)
	}
}

func TestFireDigest_InfoSeverityWithoutExceeded(t *testing.T) {
	db := openTestDB(t)
	d := newTestDaemon(t, db, &config.Config{})
	ch := &fakeChannel{}
	d.channels = []notify.SideChannel{ch}

	if err := db.Create(&models.SiteVisit{
		ID: "v1", SiteName: "a",
		ConfirmationStatus:  autorelease.ConfirmationAutoReleased,
		AutoReleaseExecuted: timePtr(testNow.Add(-time.Hour)),
	}).Error; err != nil {
		t.Fatalf("seed visit: %v", err)
	}

	if err := d.fireDigest(); err != nil {
		t.Fatalf("fire digest: %v", err)
	}
	if len(ch.posts) != 1 || ch.posts[0].severity != "info" {
		t.Errorf("posts = %+v, want one info post", ch.posts)
	}
}
