package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/db"
	"github.com/pactops/fieldops/internal/notify"
	"github.com/pactops/fieldops/internal/notify/discord"
	"github.com/pactops/fieldops/internal/notify/slack"
)

const defaultConfigPath = "fieldops.yaml"

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}

	return cfg, gormDB, nil
}

// buildSideChannels constructs the configured chat channels. Missing
// configuration for a channel just leaves it out.
func buildSideChannels(cfg *config.Config) ([]notify.SideChannel, error) {
	var channels []notify.SideChannel

	if cfg.Notify.Slack.BotToken != "" {
		ch, err := slack.New(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if cfg.Notify.Discord.BotToken != "" {
		ch, err := discord.New(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.Channel)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// parseMoney converts a decimal amount string (e.g. "1250.50") to cents.
func parseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	var f int64
	if frac != "" {
		if len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: at most two decimal places", s)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

// formatMoney renders cents as a decimal amount with comma separators.
func formatMoney(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	s := strconv.FormatInt(whole, 10)
	var b strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		b.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	out := fmt.Sprintf("%s.%02d", b.String(), frac)
	if neg {
		return "-" + out
	}
	return out
}

// parseDate parses a YYYY-MM-DD date, returning nil for the empty string.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}

// truncate shortens a string to max runes, appending an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
