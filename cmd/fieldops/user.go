package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/models"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User profile commands",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserAssignCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		configPath string
		id         string
		name       string
		email      string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			p := models.Profile{
				ID:     id,
				Name:   name,
				Email:  email,
				Role:   role,
				Active: true,
			}
			if err := gormDB.Create(&p).Error; err != nil {
				return fmt.Errorf("create user %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added user %s (%s) with role %s\n", name, id, role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&id, "id", "", "user id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", "", "application role, e.g. ProjectManager (required)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("role")
	return cmd
}

func newUserListCmd() *cobra.Command {
	var (
		configPath string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			q := gormDB.Order("name")
			if role != "" {
				q = q.Where("role = ?", role)
			}
			var users []models.Profile
			if err := q.Find(&users).Error; err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tEMAIL\tACTIVE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Name, u.Role, u.Email, u.Active)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

func newUserAssignCmd() *cobra.Command {
	var (
		configPath string
		projectID  string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "assign <user-id>",
		Short: "Add a user to a project team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			m := models.ProjectMember{
				ProjectID: projectID,
				UserID:    args[0],
				Role:      role,
			}
			if err := gormDB.Create(&m).Error; err != nil {
				return fmt.Errorf("assign %s to %s: %w", args[0], projectID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to project %s as %s\n", args[0], projectID, role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&role, "role", "", "project-scoped role, e.g. ProjectManager")
	cmd.MarkFlagRequired("project")
	return cmd
}
