package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/budget"
	"github.com/pactops/fieldops/internal/models"
	"github.com/pactops/fieldops/internal/notify"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Task budget commands",
	}

	cmd.AddCommand(newBudgetCreateCmd())
	cmd.AddCommand(newBudgetListCmd())
	cmd.AddCommand(newBudgetShowCmd())
	cmd.AddCommand(newBudgetSpendCmd())
	cmd.AddCommand(newBudgetCheckCmd())
	cmd.AddCommand(newBudgetSummaryCmd())
	cmd.AddCommand(newBudgetAlertsCmd())
	return cmd
}

func newBudgetCreateCmd() *cobra.Command {
	var (
		configPath string
		taskID     string
		taskName   string
		projectID  string
		planID     string
		amount     string
		start      string
		end        string
		hours      float64
		priority   string
		assignee   string
		notes      string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task budget",
		Long:  "Creates a budget in draft status with the full allocation unspent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			allocated, err := parseMoney(amount)
			if err != nil {
				return err
			}
			plannedStart, err := parseDate(start)
			if err != nil {
				return err
			}
			plannedEnd, err := parseDate(end)
			if err != nil {
				return err
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			b, err := budget.Create(gormDB, budget.CreateOpts{
				TaskID:         taskID,
				TaskName:       taskName,
				ProjectID:      projectID,
				PlanID:         planID,
				AllocatedCents: allocated,
				PlannedStart:   plannedStart,
				PlannedEnd:     plannedEnd,
				EstimatedHours: hours,
				Priority:       priority,
				AssignedTo:     assignee,
				Notes:          notes,
			}, actor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created budget %s\n", b.ID)
			fmt.Fprintf(out, "Task: %s (%s)\n", b.TaskName, b.TaskID)
			fmt.Fprintf(out, "Allocated: %s\n", formatMoney(b.AllocatedCents))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&taskID, "task", "", "task identifier (required)")
	cmd.Flags().StringVar(&taskName, "name", "", "task name (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&planID, "plan", "", "monitoring plan id")
	cmd.Flags().StringVar(&amount, "amount", "", "allocated amount, e.g. 1500.00 (required)")
	cmd.Flags().StringVar(&start, "start", "", "planned start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "planned end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned user id")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&actor, "actor", "", "acting user id")
	cmd.MarkFlagRequired("task")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newBudgetListCmd() *cobra.Command {
	var (
		configPath string
		projectID  string
		planID     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" && planID == "" {
				return fmt.Errorf("either --project or --plan is required")
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			var list []models.TaskBudget
			if projectID != "" {
				list, err = budget.ListProject(gormDB, projectID)
			} else {
				list, err = budget.ListPlan(gormDB, planID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No budgets found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK\tSTATUS\tALLOCATED\tSPENT\tREMAINING\tUTIL%\tVAR STATUS")
			for _, b := range list {
				v, verr := budget.UnmarshalVariance(b.Variance)
				if verr != nil {
					return verr
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.1f\t%s\n",
					b.ID, truncate(b.TaskName, 32), b.Status,
					formatMoney(b.AllocatedCents), formatMoney(b.SpentCents),
					formatMoney(b.RemainingCents),
					budget.UtilizationPct(b.AllocatedCents, b.SpentCents), v.Status)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&planID, "plan", "", "filter by monitoring plan id")
	return cmd
}

func newBudgetShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show budget details",
		Long:  "Displays a budget's allocation, spend breakdown, variance snapshot, and recent transactions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudgetShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	return cmd
}

func runBudgetShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	b, err := budget.Get(gormDB, id)
	if err != nil {
		return err
	}
	v, err := budget.UnmarshalVariance(b.Variance)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Budget %s\n", b.ID)
	fmt.Fprintf(out, "Task:       %s (%s)\n", b.TaskName, b.TaskID)
	fmt.Fprintf(out, "Project:    %s\n", b.ProjectID)
	if b.PlanID != "" {
		fmt.Fprintf(out, "Plan:       %s\n", b.PlanID)
	}
	fmt.Fprintf(out, "Status:     %s\n", b.Status)
	fmt.Fprintf(out, "Priority:   %s\n", b.Priority)
	if b.AssignedTo != "" {
		fmt.Fprintf(out, "Assignee:   %s\n", b.AssignedTo)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Allocated:  %s\n", formatMoney(b.AllocatedCents))
	fmt.Fprintf(out, "Spent:      %s (%.1f%%)\n", formatMoney(b.SpentCents),
		budget.UtilizationPct(b.AllocatedCents, b.SpentCents))
	fmt.Fprintf(out, "Remaining:  %s\n", formatMoney(b.RemainingCents))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Breakdown:  labor %s, transportation %s, materials %s, other %s\n",
		formatMoney(b.LaborCents), formatMoney(b.TransportationCents),
		formatMoney(b.MaterialsCents), formatMoney(b.OtherCents))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Cost variance:   %s (%.1f%%), status %s, trend %s\n",
		formatMoney(v.CostVarianceCents), v.CostVariancePct, v.Status, v.Trend)
	fmt.Fprintf(out, "CPI:             %.2f\n", v.CostPerformanceIndex)
	if v.ScheduleVarianceDays != nil {
		fmt.Fprintf(out, "Schedule:        %d days behind plan\n", *v.ScheduleVarianceDays)
	}
	if v.EstimateAtCompletion != nil {
		fmt.Fprintf(out, "Est. completion: %s\n", formatMoney(int64(*v.EstimateAtCompletion)))
	}

	txns, err := budget.Transactions(gormDB, b.ID, 10)
	if err != nil {
		return err
	}
	if len(txns) > 0 {
		fmt.Fprintln(out, "\nRecent transactions:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTYPE\tCATEGORY\tAMOUNT\tBALANCE AFTER\tBY")
		for _, t := range txns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.CreatedAt.Format("2006-01-02 15:04"), t.Type, t.Category,
				formatMoney(t.AmountCents), formatMoney(t.BalanceAfterCents), t.CreatedBy)
		}
		w.Flush()
	}
	return nil
}

func newBudgetSpendCmd() *cobra.Command {
	var (
		configPath  string
		amount      string
		category    string
		description string
		reference   string
		actor       string
	)

	cmd := &cobra.Command{
		Use:   "spend <budget-id>",
		Short: "Record a spend against a budget",
		Long: `Posts a spend, updates the category breakdown and variance snapshot,
and writes an immutable transaction record. A spend that would overdraw
the budget is rejected unless the budget is already in exceeded status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseMoney(amount)
			if err != nil {
				return err
			}

			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			channels, err := buildSideChannels(cfg)
			if err != nil {
				return err
			}
			trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: gormDB, Channels: channels})
			if err != nil {
				return err
			}

			res, err := budget.RecordSpend(gormDB, budget.SpendOpts{
				BudgetID:    args[0],
				AmountCents: cents,
				Category:    category,
				Description: description,
				ReferenceID: reference,
			}, actor, alerts.NewNotifier(gormDB, trigger))
			if err != nil {
				var insufficient *budget.InsufficientBudgetError
				if errors.As(err, &insufficient) {
					return fmt.Errorf("insufficient budget: requested %s, available %s (short %s)",
						formatMoney(insufficient.RequestedCents),
						formatMoney(insufficient.AvailableCents),
						formatMoney(insufficient.ShortfallCents))
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %s spend on %s\n", formatMoney(cents), res.Budget.TaskName)
			fmt.Fprintf(out, "Spent: %s / %s (%.1f%%), remaining %s\n",
				formatMoney(res.Budget.SpentCents), formatMoney(res.Budget.AllocatedCents),
				res.UtilizationPct, formatMoney(res.Budget.RemainingCents))
			if res.AlertTriggered {
				fmt.Fprintln(out, "Utilization threshold crossed, alert check triggered.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to spend, e.g. 250.00 (required)")
	cmd.Flags().StringVar(&category, "category", "other", "spend category (labor, transportation, materials, other)")
	cmd.Flags().StringVar(&description, "description", "", "what the spend was for")
	cmd.Flags().StringVar(&reference, "ref", "", "external reference id")
	cmd.Flags().StringVar(&actor, "actor", "", "acting user id")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newBudgetCheckCmd() *cobra.Command {
	var (
		configPath string
		amount     string
	)

	cmd := &cobra.Command{
		Use:   "check <budget-id>",
		Short: "Check whether a spend would be allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseMoney(amount)
			if err != nil {
				return err
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			res, err := budget.CheckRestriction(gormDB, args[0], cents)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Allowed {
				fmt.Fprintf(out, "Allowed: %s against %s remaining\n",
					formatMoney(res.RequestedCents), formatMoney(res.RemainingCents))
			} else {
				fmt.Fprintf(out, "Blocked: %s\n", res.Reason)
			}
			if res.RequiresApproval {
				fmt.Fprintln(out, "Requires finance approval.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&amount, "amount", "", "requested amount, e.g. 250.00 (required)")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newBudgetSummaryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summary <project-id>",
		Short: "Show a project's budget summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			s, err := budget.ProjectSummary(gormDB, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s: %d budgets\n", args[0], len(s.ByTask))
			fmt.Fprintf(out, "Allocated: %s, spent: %s, remaining: %s\n",
				formatMoney(s.TotalAllocatedCents), formatMoney(s.TotalSpentCents),
				formatMoney(s.TotalRemainingCents))
			fmt.Fprintf(out, "Utilization: %.1f%%, CPI: %.2f, avg variance %.1f%%\n",
				budget.UtilizationPct(s.TotalAllocatedCents, s.TotalSpentCents),
				s.OverallCPI, s.AverageVariancePct)
			fmt.Fprintf(out, "Status counts: %d on budget, %d over, %d critical, %d under\n",
				s.TasksOnBudget, s.TasksOverBudget, s.TasksCritical, s.TasksUnderBudget)

			if len(s.ByTask) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TASK\tSTATUS\tUTIL%\tVAR%\tDAYS LEFT")
				for _, row := range s.ByTask {
					days := "-"
					if row.DaysRemaining != nil {
						days = fmt.Sprintf("%d", *row.DaysRemaining)
					}
					fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%s\n",
						truncate(row.TaskName, 32), row.Variance.Status,
						row.UtilizationPct, row.Variance.CostVariancePct, days)
				}
				w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	return cmd
}

func newBudgetAlertsCmd() *cobra.Command {
	var (
		configPath string
		status     string
		ackID      uint
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "alerts <budget-id>",
		Short: "List or acknowledge a budget's alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			if ackID != 0 {
				if actor == "" {
					return fmt.Errorf("--actor is required with --ack")
				}
				if err := alerts.Acknowledge(gormDB, ackID, actor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Alert %d acknowledged.\n", ackID)
				return nil
			}

			rows, err := alerts.ListForBudget(gormDB, args[0], status)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No alerts found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tTHRESHOLD\tSTATUS\tCREATED")
			for _, a := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\t%s\n",
					a.ID, a.AlertType, a.Severity, a.ThresholdPercentage, a.Status,
					a.CreatedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().UintVar(&ackID, "ack", 0, "acknowledge the given alert id")
	cmd.Flags().StringVar(&actor, "actor", "", "acting user id (with --ack)")
	return cmd
}
