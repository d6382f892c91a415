package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/notify"
	"github.com/pactops/fieldops/internal/visits"
)

func newVisitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Site visit commands",
	}

	cmd.AddCommand(newVisitCreateCmd())
	cmd.AddCommand(newVisitListCmd())
	cmd.AddCommand(newVisitAssignCmd())
	cmd.AddCommand(newVisitConfirmCmd())
	cmd.AddCommand(newVisitCompleteCmd())
	cmd.AddCommand(newVisitCheckCmd())
	return cmd
}

func newVisitCreateCmd() *cobra.Command {
	var (
		configPath string
		siteName   string
		projectID  string
		planID     string
		deadline   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a site visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			visitDeadline, err := parseDate(deadline)
			if err != nil {
				return err
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			v, err := visits.Create(gormDB, visits.CreateOpts{
				SiteName:      siteName,
				ProjectID:     projectID,
				PlanID:        planID,
				VisitDeadline: visitDeadline,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created visit %s for site %q\n", v.ID, v.SiteName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&siteName, "site", "", "site name (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&planID, "plan", "", "monitoring plan id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "visit deadline (YYYY-MM-DD)")
	cmd.MarkFlagRequired("site")
	return cmd
}

func newVisitListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		assignee   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List site visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			rows, err := visits.List(gormDB, status, assignee)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No visits found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSITE\tSTATUS\tASSIGNEE\tCONFIRMATION\tRELEASE AT")
			for _, v := range rows {
				a := v.AssignedTo
				if a == "" {
					a = "-"
				}
				release := "-"
				if v.AutoReleaseAt != nil {
					release = v.AutoReleaseAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					v.ID, truncate(v.SiteName, 32), v.Status, a, v.ConfirmationStatus, release)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	return cmd
}

func newVisitAssignCmd() *cobra.Command {
	var (
		configPath  string
		userID      string
		windowHours int
	)

	cmd := &cobra.Command{
		Use:   "assign <visit-id>",
		Short: "Assign a visit to a collector",
		Long:  "Assigns the visit and opens the confirmation window; an unconfirmed assignment is auto-released when the window expires.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: gormDB})
			if err != nil {
				return err
			}

			v, err := visits.Assign(gormDB, trigger, args[0], userID,
				time.Duration(windowHours)*time.Hour)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Assigned visit %s to %s\n", v.ID, userID)
			fmt.Fprintf(out, "Auto-release at %s unless confirmed\n",
				v.AutoReleaseAt.Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&userID, "user", "", "collector user id (required)")
	cmd.Flags().IntVar(&windowHours, "window", 48, "confirmation window in hours")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newVisitConfirmCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "confirm <visit-id>",
		Short: "Confirm an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := autorelease.Confirm(gormDB, args[0], userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Visit %s confirmed by %s\n", args[0], userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&userID, "user", "", "collector user id (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newVisitCompleteCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "complete <visit-id>",
		Short: "Mark a visit as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := visits.Complete(gormDB, args[0], userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Visit %s completed.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&userID, "user", "", "collector user id (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newVisitCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check <visit-id>",
		Short: "Check whether a visit would be auto-released now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			release, reason := autorelease.CheckVisit(gormDB, args[0], time.Now())
			out := cmd.OutOrStdout()
			if release {
				fmt.Fprintf(out, "Would release: %s\n", reason)
			} else {
				fmt.Fprintf(out, "Would not release: %s\n", reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	return cmd
}
