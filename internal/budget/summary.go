package budget

import (
	"time"

	"gorm.io/gorm"
)

// TaskRow is one budget's line in a project summary.
type TaskRow struct {
	ID             string
	TaskID         string
	TaskName       string
	AllocatedCents int64
	SpentCents     int64
	RemainingCents int64
	UtilizationPct float64
	Variance       Variance
	Status         string
	Priority       string
	DaysRemaining  *int
}

// Summary aggregates variance across a project's task budgets.
type Summary struct {
	TotalAllocatedCents int64
	TotalSpentCents     int64
	TotalRemainingCents int64
	AverageVariancePct  float64
	TasksUnderBudget    int
	TasksOnBudget       int
	TasksOverBudget     int
	TasksCritical       int
	OverallCPI          float64
	ByTask              []TaskRow
}

// ProjectSummary computes the variance summary for all of a project's
// task budgets. An empty project yields zero totals and CPI 1.
func ProjectSummary(db *gorm.DB, projectID string) (*Summary, error) {
	budgets, err := ListProject(db, projectID)
	if err != nil {
		return nil, err
	}

	s := &Summary{OverallCPI: 1}
	if len(budgets) == 0 {
		return s, nil
	}

	now := time.Now()
	var varianceSum float64
	for _, b := range budgets {
		v, err := UnmarshalVariance(b.Variance)
		if err != nil {
			return nil, err
		}

		s.TotalAllocatedCents += b.AllocatedCents
		s.TotalSpentCents += b.SpentCents
		s.TotalRemainingCents += b.RemainingCents
		varianceSum += v.CostVariancePct

		switch v.Status {
		case StatusUnderBudget:
			s.TasksUnderBudget++
		case StatusOnBudget:
			s.TasksOnBudget++
		case StatusOverBudget:
			s.TasksOverBudget++
		case StatusCritical:
			s.TasksCritical++
		}

		row := TaskRow{
			ID:             b.ID,
			TaskID:         b.TaskID,
			TaskName:       b.TaskName,
			AllocatedCents: b.AllocatedCents,
			SpentCents:     b.SpentCents,
			RemainingCents: b.RemainingCents,
			UtilizationPct: UtilizationPct(b.AllocatedCents, b.SpentCents),
			Variance:       v,
			Status:         b.Status,
			Priority:       b.Priority,
		}
		if b.PlannedEnd != nil {
			days := daysBetween(now, *b.PlannedEnd)
			row.DaysRemaining = &days
		}
		s.ByTask = append(s.ByTask, row)
	}

	s.AverageVariancePct = varianceSum / float64(len(budgets))
	if s.TotalSpentCents > 0 {
		s.OverallCPI = float64(s.TotalAllocatedCents) / float64(s.TotalSpentCents)
	}
	return s, nil
}
