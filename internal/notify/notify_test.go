package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pactops/fieldops/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// Bulk sends fan out across goroutines; a second pooled connection
	// would see its own empty in-memory database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.Notification{},
		&models.UserSettings{},
		&models.Profile{},
		&models.ProjectMember{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func newTestTrigger(t *testing.T, db *gorm.DB) *Trigger {
	t.Helper()
	tr, err := NewTrigger(TriggerOpts{DB: db})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	return tr
}

func setSettings(t *testing.T, db *gorm.DB, userID, settings string) {
	t.Helper()
	if err := db.Create(&models.UserSettings{UserID: userID, Settings: settings}).Error; err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func notificationCount(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}

// fakeChannel records posts and optionally fails.
type fakeChannel struct {
	mu    sync.Mutex
	posts []string
	err   error
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Post(title, body, severity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, title)
	return c.err
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.posts)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return m.err
}

func TestSend_AppliesDefaults(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)

	sent, err := tr.Send("user-1", Options{Title: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Fatal("sent = false, want true")
	}

	var n models.Notification
	if err := db.First(&n, "user_id = ?", "user-1").Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if n.Type != TypeInfo || n.Category != CategorySystem || n.Priority != PriorityMedium {
		t.Errorf("defaults = (%q, %q, %q), want (info, system, medium)",
			n.Type, n.Category, n.Priority)
	}
}

func TestSend_RequiresUserID(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)

	if _, err := tr.Send("", Options{Title: "x"}); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestSend_PreferencesDisabled(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)
	setSettings(t, db, "user-1", `{"notificationPreferences":{"enabled":false}}`)

	sent, err := tr.Send("user-1", Options{Title: "suppressed"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent {
		t.Error("sent = true, want suppressed")
	}
	if got := notificationCount(t, db, "user-1"); got != 0 {
		t.Errorf("notifications stored = %d, want 0", got)
	}
}

func TestSend_CategoryOptOut(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)
	setSettings(t, db, "user-1",
		`{"notificationPreferences":{"enabled":true,"categories":{"financial":true,"system":false}}}`)

	sent, err := tr.Send("user-1", Options{Title: "x", Category: CategorySystem})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent {
		t.Error("system notification delivered despite category opt-out")
	}

	sent, err = tr.Send("user-1", Options{Title: "x", Category: CategoryFinancial})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Error("financial notification suppressed despite category opt-in")
	}
}

func TestSend_QuietHours(t *testing.T) {
	db := openTestDB(t)
	// Fixed clock at 23:00 inside a 22-06 window wrapping midnight.
	tr, err := NewTrigger(TriggerOpts{
		DB:  db,
		Now: func() time.Time { return time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	setSettings(t, db, "user-1",
		`{"notificationPreferences":{"enabled":true,"categories":{"financial":true},"quietHours":{"enabled":true,"startHour":22,"endHour":6}}}`)

	sent, err := tr.Send("user-1", Options{Title: "x", Category: CategoryFinancial, Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent {
		t.Error("high priority delivered inside quiet hours")
	}

	// Urgent bypasses the quiet window.
	sent, err = tr.Send("user-1", Options{Title: "x", Category: CategoryFinancial, Priority: PriorityUrgent})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Error("urgent suppressed by quiet hours")
	}
}

func TestSend_QuietHoursOutsideWindow(t *testing.T) {
	db := openTestDB(t)
	tr, err := NewTrigger(TriggerOpts{
		DB:  db,
		Now: func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	setSettings(t, db, "user-1",
		`{"notificationPreferences":{"enabled":true,"categories":{"system":true},"quietHours":{"enabled":true,"startHour":22,"endHour":6}}}`)

	sent, err := tr.Send("user-1", Options{Title: "x"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Error("suppressed outside quiet hours")
	}
}

func TestSend_UnreadableSettingsDeliverEverything(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)
	setSettings(t, db, "user-1", "not-json")

	sent, err := tr.Send("user-1", Options{Title: "x"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Error("unreadable settings must not suppress delivery")
	}
}

func TestSend_SideChannelsOnlyHighAndUrgent(t *testing.T) {
	db := openTestDB(t)
	ch := &fakeChannel{}
	tr, err := NewTrigger(TriggerOpts{DB: db, Channels: []SideChannel{ch}})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}

	if _, err := tr.Send("user-1", Options{Title: "routine", Priority: PriorityMedium}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.count() != 0 {
		t.Errorf("medium priority reached side channel")
	}

	if _, err := tr.Send("user-1", Options{Title: "alarm", Priority: PriorityUrgent}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.count() != 1 {
		t.Errorf("side channel posts = %d, want 1", ch.count())
	}
}

func TestSend_ChannelFailureDoesNotFailSend(t *testing.T) {
	db := openTestDB(t)
	ch := &fakeChannel{err: errors.New("webhook down")}
	tr, err := NewTrigger(TriggerOpts{DB: db, Channels: []SideChannel{ch}})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}

	sent, err := tr.Send("user-1", Options{Title: "alarm", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Error("channel failure suppressed the notification")
	}
	if got := notificationCount(t, db, "user-1"); got != 1 {
		t.Errorf("notifications stored = %d, want 1", got)
	}
}

func TestSend_EmailsProfileAddress(t *testing.T) {
	db := openTestDB(t)
	if err := db.Create(&models.Profile{ID: "user-1", Name: "Asha", Email: "asha@example.org", Active: true}).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	m := &fakeMailer{}
	tr, err := NewTrigger(TriggerOpts{DB: db, Mailer: m})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}

	if _, err := tr.Send("user-1", Options{Title: "alarm", Priority: PriorityUrgent}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.sent) != 1 || m.sent[0] != "asha@example.org" {
		t.Errorf("mailer recipients = %v, want [asha@example.org]", m.sent)
	}

	// No profile row means no email, not an error.
	if _, err := tr.Send("user-2", Options{Title: "alarm", Priority: PriorityUrgent}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.sent) != 1 {
		t.Errorf("mailer recipients = %v, want unchanged", m.sent)
	}
}

func TestSendBulk_CountsSuccesses(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)
	setSettings(t, db, "opted-out", `{"notificationPreferences":{"enabled":false}}`)

	count := tr.SendBulk([]string{"a", "b", "opted-out", "c"}, Options{Title: "fanout"})
	if count != 3 {
		t.Errorf("bulk count = %d, want 3", count)
	}
}

func TestSendToRoles_NoMatchesIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)

	count, err := tr.SendToRoles([]string{"senior_operations_lead"}, Options{Title: "x"}, "")
	if err != nil {
		t.Fatalf("send to roles: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestSendToRoles_FiltersInactiveAndProject(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)

	profiles := []models.Profile{
		{ID: "lead-1", Name: "Lead One", Role: "senior_operations_lead", Active: true},
		{ID: "lead-2", Name: "Lead Two", Role: "senior_operations_lead", Active: true},
		{ID: "lead-3", Name: "Gone", Role: "senior_operations_lead", Active: false},
		{ID: "pm-1", Name: "PM", Role: "project_manager", Active: true},
	}
	for i := range profiles {
		if err := db.Create(&profiles[i]).Error; err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}

	count, err := tr.SendToRoles([]string{"senior_operations_lead"}, Options{Title: "x"}, "")
	if err != nil {
		t.Fatalf("send to roles: %v", err)
	}
	if count != 2 {
		t.Errorf("unscoped count = %d, want 2 (inactive excluded)", count)
	}

	// Project scoping intersects role holders with membership.
	if err := db.Create(&models.ProjectMember{ProjectID: "proj-1", UserID: "lead-1", Role: "lead"}).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	count, err = tr.SendToRoles([]string{"senior_operations_lead"}, Options{Title: "x"}, "proj-1")
	if err != nil {
		t.Fatalf("send to roles scoped: %v", err)
	}
	if count != 1 {
		t.Errorf("project-scoped count = %d, want 1", count)
	}
}

func TestSendToProjectTeam(t *testing.T) {
	db := openTestDB(t)
	tr := newTestTrigger(t, db)

	members := []models.ProjectMember{
		{ProjectID: "proj-1", UserID: "u1"},
		{ProjectID: "proj-1", UserID: "u2"},
		{ProjectID: "proj-2", UserID: "u3"},
	}
	for i := range members {
		if err := db.Create(&members[i]).Error; err != nil {
			t.Fatalf("create member: %v", err)
		}
	}

	count, err := tr.SendToProjectTeam("proj-1", Options{Title: "team news"})
	if err != nil {
		t.Fatalf("send to team: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if got := notificationCount(t, db, "u3"); got != 0 {
		t.Errorf("u3 notified across project boundary")
	}
}
