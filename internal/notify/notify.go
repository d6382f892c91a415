// Package notify creates in-app notifications and fans them out to
// users, role sets, and project teams, with best-effort side-channel
// dispatch for high-priority messages.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pactops/fieldops/internal/models"
	"gorm.io/gorm"
)

// Notification categories.
const (
	CategoryAssignments = "assignments"
	CategoryApprovals   = "approvals"
	CategoryFinancial   = "financial"
	CategoryTeam        = "team"
	CategorySystem      = "system"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification display types.
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Options holds the user-independent fields of a notification.
type Options struct {
	Title             string
	Message           string
	Type              string // info, success, warning, error
	Category          string
	Priority          string
	Link              string
	RelatedEntityID   string
	RelatedEntityType string
}

// SideChannel posts a notification to an external channel (chat,
// pager). Implementations are best-effort: callers log and discard
// their errors.
type SideChannel interface {
	Name() string
	Post(title, body, severity string) error
}

// Mailer sends a notification email. Best-effort like SideChannel.
type Mailer interface {
	Send(to, subject, body string) error
}

// RoleDirectory resolves users by application role.
type RoleDirectory interface {
	UsersWithRole(role string) ([]string, error)
	UsersWithAnyRole(roles []string) ([]string, error)
}

// TeamDirectory resolves users by project membership.
type TeamDirectory interface {
	ProjectMembers(projectID string) ([]string, error)
	ProjectMembersWithRole(projectID, role string) ([]string, error)
}

// Trigger creates notifications. Role and team resolution go through
// the injected directories so the trigger is testable without the
// real membership tables.
type Trigger struct {
	db       *gorm.DB
	roles    RoleDirectory
	teams    TeamDirectory
	channels []SideChannel
	mailer   Mailer
	now      func() time.Time
}

// TriggerOpts holds parameters for creating a Trigger.
type TriggerOpts struct {
	DB       *gorm.DB
	Roles    RoleDirectory // defaults to the gorm-backed directory
	Teams    TeamDirectory // defaults to the gorm-backed directory
	Channels []SideChannel // optional side channels for high/urgent sends
	Mailer   Mailer        // optional email side channel
	Now      func() time.Time
}

// NewTrigger creates a Trigger with the given options.
func NewTrigger(opts TriggerOpts) (*Trigger, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: db is required")
	}
	dir := NewDirectory(opts.DB)
	if opts.Roles == nil {
		opts.Roles = dir
	}
	if opts.Teams == nil {
		opts.Teams = dir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Trigger{
		db:       opts.DB,
		roles:    opts.Roles,
		teams:    opts.Teams,
		channels: opts.Channels,
		mailer:   opts.Mailer,
		now:      opts.Now,
	}, nil
}

// Send creates a notification for one user. It returns (false, nil)
// when the user's preferences suppress the send and (false, err) when
// the insert fails. Side channels and email fire only for high and
// urgent priorities; their failures are logged and discarded.
func (t *Trigger) Send(userID string, opts Options) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("notify: user id is required")
	}
	applyDefaults(&opts)

	if !t.shouldSend(userID, opts.Category, opts.Priority) {
		return false, nil
	}

	n := models.Notification{
		UserID:            userID,
		Title:             opts.Title,
		Message:           opts.Message,
		Type:              opts.Type,
		Category:          opts.Category,
		Priority:          opts.Priority,
		Link:              opts.Link,
		RelatedEntityID:   opts.RelatedEntityID,
		RelatedEntityType: opts.RelatedEntityType,
	}
	if err := t.db.Create(&n).Error; err != nil {
		return false, fmt.Errorf("notify: send to %s: %w", userID, err)
	}

	if opts.Priority == PriorityHigh || opts.Priority == PriorityUrgent {
		t.dispatchSideChannels(userID, opts)
	}
	return true, nil
}

// SendBulk fans a notification out to many users concurrently and
// returns how many sends succeeded. Each recipient is independent: a
// failure for one never blocks the others.
func (t *Trigger) SendBulk(userIDs []string, opts Options) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sent, err := t.Send(userID, opts)
			if err != nil {
				log.Printf("notify: bulk send to %s: %v", userID, err)
				return
			}
			if sent {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return count
}

// SendToRoles notifies every user holding one of the given roles,
// optionally restricted to members of a project. Zero matching users
// is not an error.
func (t *Trigger) SendToRoles(roles []string, opts Options, projectID string) (int, error) {
	userIDs, err := t.roles.UsersWithAnyRole(roles)
	if err != nil {
		return 0, fmt.Errorf("notify: resolve roles: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	if projectID != "" {
		members, err := t.teams.ProjectMembers(projectID)
		if err != nil {
			return 0, fmt.Errorf("notify: resolve project %s members: %w", projectID, err)
		}
		memberSet := make(map[string]bool, len(members))
		for _, m := range members {
			memberSet[m] = true
		}
		filtered := userIDs[:0]
		for _, id := range userIDs {
			if memberSet[id] {
				filtered = append(filtered, id)
			}
		}
		userIDs = filtered
	}

	return t.SendBulk(userIDs, opts), nil
}

// SendToProjectTeam notifies every member of a project.
func (t *Trigger) SendToProjectTeam(projectID string, opts Options) (int, error) {
	members, err := t.teams.ProjectMembers(projectID)
	if err != nil {
		return 0, fmt.Errorf("notify: resolve project %s members: %w", projectID, err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	return t.SendBulk(members, opts), nil
}

// dispatchSideChannels posts to each configured channel and emails
// the user. All failures are swallowed after logging.
func (t *Trigger) dispatchSideChannels(userID string, opts Options) {
	for _, ch := range t.channels {
		if err := ch.Post(opts.Title, opts.Message, opts.Type); err != nil {
			log.Printf("notify: %s channel post failed: %v", ch.Name(), err)
		}
	}

	if t.mailer == nil {
		return
	}
	var p models.Profile
	if err := t.db.Where("id = ?", userID).First(&p).Error; err != nil || p.Email == "" {
		return
	}
	if err := t.mailer.Send(p.Email, opts.Title, opts.Message); err != nil {
		log.Printf("notify: email to %s failed: %v", p.Email, err)
	}
}

func applyDefaults(opts *Options) {
	if opts.Type == "" {
		opts.Type = TypeInfo
	}
	if opts.Category == "" {
		opts.Category = CategorySystem
	}
	if opts.Priority == "" {
		opts.Priority = PriorityMedium
	}
}
