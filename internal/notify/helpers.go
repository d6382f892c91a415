package notify

import (
	"fmt"
	"log"
)

// logSendError records a failed helper send. Helper notifications are
// all best-effort.
func logSendError(kind, userID string, err error) {
	log.Printf("notify: %s notification to %s: %v", kind, userID, err)
}

// SiteAssigned tells a collector they have a new site assignment.
func (t *Trigger) SiteAssigned(userID, siteName, siteID string) {
	if _, err := t.Send(userID, Options{
		Title:             "New Site Assignment",
		Message:           fmt.Sprintf("You have been assigned to visit %q", siteName),
		Type:              TypeInfo,
		Category:          CategoryAssignments,
		Priority:          PriorityHigh,
		Link:              "/visits/" + siteID,
		RelatedEntityID:   siteID,
		RelatedEntityType: "siteVisit",
	}); err != nil {
		logSendError("site assigned", userID, err)
	}
}

// SiteAutoReleased tells a former assignee their unconfirmed
// assignment was released back to the pool.
func (t *Trigger) SiteAutoReleased(userID, siteName, siteID string) {
	if _, err := t.Send(userID, Options{
		Title:             "Assignment Auto-Released",
		Message:           fmt.Sprintf("Your assignment to %q was released because it was not confirmed before the deadline", siteName),
		Type:              TypeWarning,
		Category:          CategoryAssignments,
		Priority:          PriorityHigh,
		Link:              "/visits/" + siteID,
		RelatedEntityID:   siteID,
		RelatedEntityType: "siteVisit",
	}); err != nil {
		logSendError("auto-release", userID, err)
	}
}

// VisitReminder nags an assignee about an upcoming or overdue visit
// deadline. Urgency scales with how close the deadline is.
func (t *Trigger) VisitReminder(userID, siteName string, hoursLeft int, siteID string) {
	priority, typ := PriorityMedium, TypeInfo
	switch {
	case hoursLeft <= 4:
		priority, typ = PriorityUrgent, TypeError
	case hoursLeft <= 24:
		priority, typ = PriorityHigh, TypeWarning
	}

	title := "Site Visit Reminder"
	message := fmt.Sprintf("Site visit to %q is due in %d hours", siteName, hoursLeft)
	if hoursLeft <= 0 {
		title = "Site Visit Overdue"
		message = fmt.Sprintf("Site visit to %q is overdue", siteName)
	}

	if _, err := t.Send(userID, Options{
		Title:             title,
		Message:           message,
		Type:              typ,
		Category:          CategoryAssignments,
		Priority:          priority,
		Link:              "/visits/" + siteID,
		RelatedEntityID:   siteID,
		RelatedEntityType: "siteVisit",
	}); err != nil {
		logSendError("visit reminder", userID, err)
	}
}

// ApprovalRequired asks a user to review a pending approval item.
func (t *Trigger) ApprovalRequired(userID, itemType, itemName, link string) {
	if _, err := t.Send(userID, Options{
		Title:    "Approval Required",
		Message:  fmt.Sprintf("%s %q requires your approval", itemType, itemName),
		Type:     TypeWarning,
		Category: CategoryApprovals,
		Priority: PriorityHigh,
		Link:     link,
	}); err != nil {
		logSendError("approval required", userID, err)
	}
}
