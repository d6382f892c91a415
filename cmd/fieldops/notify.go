package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/mailer"
	"github.com/pactops/fieldops/internal/notify"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification commands",
	}

	cmd.AddCommand(newNotifySendCmd())
	cmd.AddCommand(newNotifyEscalateCmd())
	cmd.AddCommand(newNotifyApprovalCmd())
	return cmd
}

// buildTrigger wires the full notification stack from config.
func buildTrigger(configPath string) (*notify.Trigger, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}

	channels, err := buildSideChannels(cfg)
	if err != nil {
		return nil, err
	}

	opts := notify.TriggerOpts{DB: gormDB, Channels: channels}
	if cfg.Notify.SMTP.Host != "" {
		m, err := mailer.NewSMTP(gormDB, cfg.Notify.SMTP)
		if err != nil {
			return nil, err
		}
		opts.Mailer = m
	}
	return notify.NewTrigger(opts)
}

func newNotifySendCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		title      string
		message    string
		kind       string
		category   string
		priority   string
		link       string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := buildTrigger(configPath)
			if err != nil {
				return err
			}

			sent, err := trigger.Send(userID, notify.Options{
				Title:    title,
				Message:  message,
				Type:     kind,
				Category: category,
				Priority: priority,
				Link:     link,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if sent {
				fmt.Fprintf(out, "Notification sent to %s\n", userID)
			} else {
				fmt.Fprintf(out, "Suppressed by %s's notification preferences\n", userID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&userID, "user", "", "recipient user id (required)")
	cmd.Flags().StringVar(&title, "title", "", "notification title (required)")
	cmd.Flags().StringVar(&message, "message", "", "notification body")
	cmd.Flags().StringVar(&kind, "type", "info", "type (info, success, warning, error)")
	cmd.Flags().StringVar(&category, "category", "system", "category (assignments, approvals, financial, team, system)")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&link, "link", "", "in-app link")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newNotifyEscalateCmd() *cobra.Command {
	var (
		configPath  string
		projectName string
		amount      string
		shortfall   string
		requestedBy string
		reason      string
	)

	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Escalate an over-budget request for override approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			amountCents, err := parseMoney(amount)
			if err != nil {
				return err
			}
			shortfallCents, err := parseMoney(shortfall)
			if err != nil {
				return err
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: gormDB})
			if err != nil {
				return err
			}

			count, err := alerts.NewNotifier(gormDB, trigger).SendEscalation(alerts.EscalationRequest{
				ProjectName:     projectName,
				AmountCents:     amountCents,
				ShortfallCents:  shortfallCents,
				RequestedByName: requestedBy,
				Reason:          reason,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Escalation sent to %d approvers\n", count)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&projectName, "project-name", "", "project display name (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "requested amount, e.g. 500.00 (required)")
	cmd.Flags().StringVar(&shortfall, "shortfall", "", "budget shortfall, e.g. 120.00 (required)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requester display name")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the over-budget request")
	cmd.MarkFlagRequired("project-name")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("shortfall")
	return cmd
}

func newNotifyApprovalCmd() *cobra.Command {
	var (
		configPath  string
		userID      string
		approved    bool
		amount      string
		projectName string
		approver    string
	)

	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Notify a requester of an approval decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			amountCents, err := parseMoney(amount)
			if err != nil {
				return err
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			trigger, err := notify.NewTrigger(notify.TriggerOpts{DB: gormDB})
			if err != nil {
				return err
			}

			sent, err := alerts.NewNotifier(gormDB, trigger).
				SendApprovalResult(userID, approved, amountCents, projectName, approver)
			if err != nil {
				return err
			}
			if sent {
				fmt.Fprintf(cmd.OutOrStdout(), "Decision sent to %s\n", userID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Suppressed by %s's notification preferences\n", userID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&userID, "user", "", "requester user id (required)")
	cmd.Flags().BoolVar(&approved, "approved", false, "the request was approved")
	cmd.Flags().StringVar(&amount, "amount", "", "requested amount, e.g. 500.00 (required)")
	cmd.Flags().StringVar(&projectName, "project-name", "", "project display name (required)")
	cmd.Flags().StringVar(&approver, "approver", "", "approver display name")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("project-name")
	return cmd
}
