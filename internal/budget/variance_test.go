package budget

import (
	"testing"
	"time"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestCalculate_StatusBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		allocated int64
		spent     int64
		want      string
	}{
		{"exactly +25 is not critical", 100_000, 125_000, StatusOverBudget},
		{"just over +25 is critical", 100_000, 125_001, StatusCritical},
		{"exactly +15 is not over", 100_000, 115_000, StatusOnBudget},
		{"just over +15 is over", 100_000, 115_001, StatusOverBudget},
		{"exactly -5 is not under", 100_000, 95_000, StatusOnBudget},
		{"just below -5 is under", 100_000, 94_999, StatusUnderBudget},
		{"zero spend on zero allocation", 0, 0, StatusOnBudget},
		{"spend against zero allocation", 0, 50_000, StatusOnBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Calculate(VarianceInput{AllocatedCents: tt.allocated, SpentCents: tt.spent})
			if v.Status != tt.want {
				t.Errorf("status = %q, want %q (variance %.2f%%)", v.Status, tt.want, v.CostVariancePct)
			}
		})
	}
}

func TestCalculate_ZeroAllocationGuards(t *testing.T) {
	v := Calculate(VarianceInput{AllocatedCents: 0, SpentCents: 50_000})
	if v.CostVariancePct != 0 {
		t.Errorf("variance pct with zero allocation = %.2f, want 0", v.CostVariancePct)
	}
	if v.CostPerformanceIndex != 0 {
		t.Errorf("CPI = %.2f, want 0 (allocated 0, spent > 0)", v.CostPerformanceIndex)
	}
}

func TestCalculate_CPIDefaultsToOneWhenNothingSpent(t *testing.T) {
	v := Calculate(VarianceInput{AllocatedCents: 100_000, SpentCents: 0})
	if v.CostPerformanceIndex != 1 {
		t.Errorf("CPI = %.2f, want 1", v.CostPerformanceIndex)
	}
	if v.EstimateAtCompletion != nil {
		t.Errorf("EAC should be nil when nothing is spent, got %.2f", *v.EstimateAtCompletion)
	}
}

func TestCalculate_CPIAndEAC(t *testing.T) {
	v := Calculate(VarianceInput{AllocatedCents: 100_000, SpentCents: 75_000})
	if got, want := v.CostPerformanceIndex, 100_000.0/75_000.0; got != want {
		t.Errorf("CPI = %v, want %v", got, want)
	}
	if v.EstimateAtCompletion == nil {
		t.Fatal("EAC missing")
	}
	// EAC = allocated / CPI = spent when no further work is projected.
	if got, want := *v.EstimateAtCompletion, 75_000.0; got != want {
		t.Errorf("EAC = %v, want %v", got, want)
	}
}

func TestCalculate_ScheduleVarianceCompleted(t *testing.T) {
	v := Calculate(VarianceInput{
		AllocatedCents: 100_000,
		SpentCents:     50_000,
		PlannedStart:   datePtr(2026, time.March, 1),
		PlannedEnd:     datePtr(2026, time.March, 11), // 10 days planned
		ActualStart:    datePtr(2026, time.March, 1),
		ActualEnd:      datePtr(2026, time.March, 16), // 15 days actual
	})
	if v.ScheduleVarianceDays == nil || *v.ScheduleVarianceDays != 5 {
		t.Fatalf("schedule variance days = %v, want 5", v.ScheduleVarianceDays)
	}
	if v.ScheduleVariancePct == nil || *v.ScheduleVariancePct != 50 {
		t.Errorf("schedule variance pct = %v, want 50", v.ScheduleVariancePct)
	}
	if v.SchedulePerformanceIndex == nil || *v.SchedulePerformanceIndex != 10.0/15.0 {
		t.Errorf("SPI = %v, want %v", v.SchedulePerformanceIndex, 10.0/15.0)
	}
}

func TestCalculate_ScheduleOverrunOnlyWhenStarted(t *testing.T) {
	now := time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC)

	// Started, unfinished, past planned end: overrun estimated.
	started := Calculate(VarianceInput{
		AllocatedCents: 100_000,
		PlannedStart:   datePtr(2026, time.April, 1),
		PlannedEnd:     datePtr(2026, time.April, 10),
		ActualStart:    datePtr(2026, time.April, 1),
		Now:            now,
	})
	if started.ScheduleVarianceDays == nil || *started.ScheduleVarianceDays != 10 {
		t.Errorf("started overdue task variance days = %v, want 10", started.ScheduleVarianceDays)
	}

	// Never started, equally overdue: no schedule variance.
	unstarted := Calculate(VarianceInput{
		AllocatedCents: 100_000,
		PlannedStart:   datePtr(2026, time.April, 1),
		PlannedEnd:     datePtr(2026, time.April, 10),
		Now:            now,
	})
	if unstarted.ScheduleVarianceDays != nil {
		t.Errorf("unstarted task variance days = %v, want nil", *unstarted.ScheduleVarianceDays)
	}

	// Started but planned end still ahead: nothing yet.
	ahead := Calculate(VarianceInput{
		AllocatedCents: 100_000,
		PlannedStart:   datePtr(2026, time.April, 1),
		PlannedEnd:     datePtr(2026, time.April, 30),
		ActualStart:    datePtr(2026, time.April, 1),
		Now:            now,
	})
	if ahead.ScheduleVarianceDays != nil {
		t.Errorf("in-window task variance days = %v, want nil", *ahead.ScheduleVarianceDays)
	}
}

func TestCalculate_Trend(t *testing.T) {
	prev := func(cents int64) *int64 { return &cents }

	tests := []struct {
		name     string
		previous *int64
		spent    int64
		want     string
	}{
		{"no prior snapshot is stable", nil, 90_000, TrendStable},
		{"rise above 5pp is worsening", prev(50_000), 56_000, TrendWorsening},
		{"rise of exactly 5pp is stable", prev(50_000), 55_000, TrendStable},
		{"drop below 2pp is improving", prev(50_000), 47_000, TrendImproving},
		{"drop of exactly 2pp is stable", prev(50_000), 48_000, TrendStable},
		{"small movement is stable", prev(50_000), 51_000, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Calculate(VarianceInput{
				AllocatedCents:     100_000,
				SpentCents:         tt.spent,
				PreviousSpentCents: tt.previous,
			})
			if v.Trend != tt.want {
				t.Errorf("trend = %q, want %q", v.Trend, tt.want)
			}
		})
	}
}

func TestUtilizationPct(t *testing.T) {
	if got := UtilizationPct(100_000, 85_000); got != 85 {
		t.Errorf("UtilizationPct = %v, want 85", got)
	}
	if got := UtilizationPct(0, 85_000); got != 0 {
		t.Errorf("UtilizationPct with zero allocation = %v, want 0", got)
	}
}

func TestUnmarshalVariance_EmptyDefaults(t *testing.T) {
	v, err := UnmarshalVariance("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.CostPerformanceIndex != 1 || v.Status != StatusOnBudget || v.Trend != TrendStable {
		t.Errorf("empty snapshot defaults = (%v, %q, %q), want (1, on_budget, stable)",
			v.CostPerformanceIndex, v.Status, v.Trend)
	}
}
