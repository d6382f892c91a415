// Package autorelease returns unconfirmed site visit assignments to
// the dispatch pool once their confirmation window expires.
package autorelease

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

// Confirmation statuses. auto_released is terminal.
const (
	ConfirmationPending      = "pending"
	ConfirmationConfirmed    = "confirmed"
	ConfirmationAutoReleased = "auto_released"
)

// defaultBatchLimit caps how many candidate visits one scan loads.
const defaultBatchLimit = 500

// activeStatuses are the visit statuses eligible for release.
var activeStatuses = []string{"dispatched", "in_progress", "claimed", "assigned"}

// Result records the outcome of one release attempt.
type Result struct {
	VisitID        string `json:"visitId"`
	SiteName       string `json:"siteName"`
	FormerAssignee string `json:"formerAssignee"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Processed int      `json:"processed"`
	Released  int      `json:"released"`
	Errors    int      `json:"errors"`
	Results   []Result `json:"results"`
}

// Scanner finds and releases expired unconfirmed assignments.
type Scanner struct {
	db      *gorm.DB
	trigger *notify.Trigger
	limit   int
	now     func() time.Time
}

// NewScanner creates a Scanner. limit <= 0 uses the default batch cap.
func NewScanner(db *gorm.DB, trigger *notify.Trigger, limit int) *Scanner {
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return &Scanner{db: db, trigger: trigger, limit: limit, now: time.Now}
}

// Eligible reports whether a visit should be auto-released at the
// given instant. All guards must hold: a deadline is set and passed,
// confirmation is still pending, the release has not already been
// triggered, and someone is actually assigned.
func Eligible(v *models.SiteVisit, now time.Time) bool {
	if v.AutoReleaseAt == nil {
		return false
	}
	if v.ConfirmationStatus != ConfirmationPending {
		return false
	}
	if v.AutoReleaseTriggered {
		return false
	}
	if v.AssignedTo == "" {
		return false
	}
	return !now.Before(*v.AutoReleaseAt)
}

// Process runs one scan: load assigned visits in an active status,
// filter to the eligible ones, and release each. Failures are
// isolated per record so one bad row never stops the batch.
func (s *Scanner) Process() (*ScanResult, error) {
	var candidates []models.SiteVisit
	err := s.db.
		Where("assigned_to <> '' AND status IN ?", activeStatuses).
		Limit(s.limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("autorelease: fetch candidates: %w", err)
	}

	res := &ScanResult{Results: []Result{}}
	now := s.now()

	for i := range candidates {
		v := &candidates[i]
		if !Eligible(v, now) {
			continue
		}
		res.Processed++
		r := s.releaseVisit(v, now)
		res.Results = append(res.Results, r)
		if r.Success {
			res.Released++
		} else {
			res.Errors++
		}
	}

	if res.Processed > 0 {
		log.Printf("autorelease: scan complete: %d/%d visits released, %d errors",
			res.Released, res.Processed, res.Errors)
	}
	return res, nil
}

// releaseVisit clears the assignment, stamps the release bookkeeping,
// and notifies the former assignee. The notification is best-effort.
func (s *Scanner) releaseVisit(v *models.SiteVisit, now time.Time) Result {
	r := Result{
		VisitID:        v.ID,
		SiteName:       v.SiteName,
		FormerAssignee: v.AssignedTo,
	}

	err := s.db.Model(&models.SiteVisit{}).
		Where("id = ?", v.ID).
		Updates(map[string]interface{}{
			"status":                 "dispatched",
			"assigned_to":            "",
			"assigned_at":            nil,
			"confirmation_status":    ConfirmationAutoReleased,
			"auto_release_triggered": true,
			"auto_release_executed":  &now,
			"former_assignee":        v.AssignedTo,
		}).Error
	if err != nil {
		log.Printf("autorelease: release %s: %v", v.ID, err)
		r.Error = err.Error()
		return r
	}

	s.trigger.SiteAutoReleased(r.FormerAssignee, v.SiteName, v.ID)

	log.Printf("autorelease: site %s (%s) released from %s", v.SiteName, v.ID, r.FormerAssignee)
	r.Success = true
	return r
}

// CheckVisit evaluates a single visit and reports whether it would be
// released now, with the reason when it would not.
func CheckVisit(db *gorm.DB, visitID string, now time.Time) (bool, string) {
	var v models.SiteVisit
	if err := db.Where("id = ?", visitID).First(&v).Error; err != nil {
		return false, "visit not found"
	}

	switch {
	case v.AutoReleaseAt == nil:
		return false, "no auto-release time set"
	case v.ConfirmationStatus == ConfirmationConfirmed:
		return false, "already confirmed by assignee"
	case v.ConfirmationStatus == ConfirmationAutoReleased:
		return false, "already auto-released"
	case v.AutoReleaseTriggered:
		return false, "auto-release already triggered"
	case v.AssignedTo == "":
		return false, "no assignee on visit"
	case now.Before(*v.AutoReleaseAt):
		return false, "auto-release time not yet reached"
	}
	return true, "ready for auto-release"
}

// Confirm records the assignee's confirmation, closing the release
// window for the visit.
func Confirm(db *gorm.DB, visitID, userID string) error {
	res := db.Model(&models.SiteVisit{}).
		Where("id = ? AND assigned_to = ? AND confirmation_status = ?",
			visitID, userID, ConfirmationPending).
		Update("confirmation_status", ConfirmationConfirmed)
	if res.Error != nil {
		return fmt.Errorf("autorelease: confirm %s: %w", visitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("autorelease: confirm %s: no pending assignment for %s", visitID, userID)
	}
	return nil
}
