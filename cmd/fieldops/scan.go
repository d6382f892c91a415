package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/notify"
)

func newScanCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one auto-release scan",
		Long:  "Finds assigned visits whose confirmation window has expired and releases them back to the dispatch pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if limit <= 0 {
				limit = cfg.Scanner.BatchLimit
			}
			res, err := autorelease.NewScanner(gormDB, trigger, limit).Process()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d expired assignments: %d released, %d errors\n",
				res.Processed, res.Released, res.Errors)
			for _, r := range res.Results {
				if r.Success {
					fmt.Fprintf(out, "  released %s (%s) from %s\n", r.SiteName, r.VisitID, r.FormerAssignee)
				} else {
					fmt.Fprintf(out, "  FAILED %s (%s): %s\n", r.SiteName, r.VisitID, r.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	cmd.Flags().IntVar(&limit, "limit", 0, "max candidates to load (default from config)")
	return cmd
}
