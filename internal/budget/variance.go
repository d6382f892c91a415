// Package budget provides task budget lifecycle operations and
// cost/schedule variance analysis.
package budget

import "time"

// Variance status values, derived from cost variance percentage.
const (
	StatusUnderBudget = "under_budget"
	StatusOnBudget    = "on_budget"
	StatusOverBudget  = "over_budget"
	StatusCritical    = "critical"
)

// Trend direction values, derived from the utilization change since
// the previous spend snapshot.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendWorsening = "worsening"
)

// Cost variance thresholds in percentage points. All comparisons are
// strict: a variance of exactly 25 is over_budget, not critical.
const (
	thresholdUnder    = 5
	thresholdOver     = 15
	thresholdCritical = 25
)

// Variance is the derived analysis snapshot for a task budget. It is
// recomputed on every mutation and stored as JSON on the budget row.
type Variance struct {
	CostVarianceCents int64   `json:"cost_variance_cents"`
	CostVariancePct   float64 `json:"cost_variance_pct"`

	ScheduleVarianceDays *int     `json:"schedule_variance_days,omitempty"`
	ScheduleVariancePct  *float64 `json:"schedule_variance_pct,omitempty"`

	CostPerformanceIndex     float64  `json:"cost_performance_index"`
	SchedulePerformanceIndex *float64 `json:"schedule_performance_index,omitempty"`
	EstimateAtCompletion     *float64 `json:"estimate_at_completion,omitempty"`

	Status string `json:"status"`
	Trend  string `json:"trend"`
}

// VarianceInput holds the figures variance analysis is computed from.
// Optional dates are nil when not set. PreviousSpentCents enables
// trend detection; nil means no prior snapshot exists.
type VarianceInput struct {
	AllocatedCents int64
	SpentCents     int64

	PlannedStart *time.Time
	PlannedEnd   *time.Time
	ActualStart  *time.Time
	ActualEnd    *time.Time

	EstimatedHours float64
	ActualHours    float64

	PreviousSpentCents *int64

	// Now anchors the in-flight schedule estimate; the zero value
	// means time.Now().
	Now time.Time
}

// daysBetween returns the number of whole days from a to b, negative
// when b precedes a.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Calculate computes the variance snapshot for a budget. It is a pure
// function of its input.
//
// Schedule variance is only computed when both planned dates exist.
// For a started-but-unfinished task it estimates an overrun only once
// the planned end has already passed; tasks that never started are
// never assigned schedule variance, even when overdue.
func Calculate(in VarianceInput) Variance {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	v := Variance{
		CostVarianceCents:    in.AllocatedCents - in.SpentCents,
		CostPerformanceIndex: 1,
		Status:               StatusOnBudget,
		Trend:                TrendStable,
	}

	if in.AllocatedCents > 0 {
		v.CostVariancePct = float64(in.SpentCents-in.AllocatedCents) / float64(in.AllocatedCents) * 100
	}
	if in.SpentCents > 0 {
		v.CostPerformanceIndex = float64(in.AllocatedCents) / float64(in.SpentCents)
	}

	switch {
	case v.CostVariancePct > thresholdCritical:
		v.Status = StatusCritical
	case v.CostVariancePct > thresholdOver:
		v.Status = StatusOverBudget
	case v.CostVariancePct < -thresholdUnder:
		v.Status = StatusUnderBudget
	}

	if in.PlannedStart != nil && in.PlannedEnd != nil {
		plannedDuration := daysBetween(*in.PlannedStart, *in.PlannedEnd)

		if in.ActualStart != nil && in.ActualEnd != nil {
			actualDuration := daysBetween(*in.ActualStart, *in.ActualEnd)
			days := actualDuration - plannedDuration
			v.ScheduleVarianceDays = &days

			pct := 0.0
			if plannedDuration > 0 {
				pct = float64(actualDuration-plannedDuration) / float64(plannedDuration) * 100
			}
			v.ScheduleVariancePct = &pct

			spi := 1.0
			if actualDuration > 0 {
				spi = float64(plannedDuration) / float64(actualDuration)
			}
			v.SchedulePerformanceIndex = &spi
		} else if in.ActualStart != nil {
			remainingPlanned := daysBetween(now, *in.PlannedEnd)
			if remainingPlanned < 0 {
				days := -remainingPlanned
				v.ScheduleVarianceDays = &days
			}
		}
	}

	if in.SpentCents > 0 && v.CostPerformanceIndex > 0 {
		eac := float64(in.AllocatedCents) / v.CostPerformanceIndex
		v.EstimateAtCompletion = &eac
	}

	if in.PreviousSpentCents != nil {
		var prevUtil, curUtil float64
		if in.AllocatedCents > 0 {
			prevUtil = float64(*in.PreviousSpentCents) / float64(in.AllocatedCents)
			curUtil = float64(in.SpentCents) / float64(in.AllocatedCents)
		}
		switch delta := curUtil - prevUtil; {
		case delta > 0.05:
			v.Trend = TrendWorsening
		case delta < -0.02:
			v.Trend = TrendImproving
		}
	}

	return v
}

// UtilizationPct returns spent over allocated as a percentage, 0 when
// nothing is allocated.
func UtilizationPct(allocatedCents, spentCents int64) float64 {
	if allocatedCents <= 0 {
		return 0
	}
	return float64(spentCents) / float64(allocatedCents) * 100
}
