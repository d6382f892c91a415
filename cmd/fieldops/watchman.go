package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pactops/fieldops/internal/mailer"
	"github.com/pactops/fieldops/internal/notify"
	"github.com/pactops/fieldops/internal/watchman"
)

func newWatchmanCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watchman",
		Short: "Run the monitoring daemon",
		Long: `Runs the watchman daemon: periodic auto-release scans, budget
threshold sweeps, visit deadline reminders, and the daily digest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchman(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to FieldOps config file")
	return cmd
}

func runWatchman(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	channels, err := buildSideChannels(cfg)
	if err != nil {
		return err
	}

	opts := notify.TriggerOpts{DB: gormDB, Channels: channels}
	if cfg.Notify.SMTP.Host != "" {
		m, err := mailer.NewSMTP(gormDB, cfg.Notify.SMTP)
		if err != nil {
			return err
		}
		opts.Mailer = m
	}
	trigger, err := notify.NewTrigger(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return watchman.RunDaemon(ctx, gormDB, cfg, trigger, channels, cmd.OutOrStdout())
}
