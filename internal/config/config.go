// Package config provides YAML-based configuration loading for fieldops.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fieldops configuration, loaded from fieldops.yaml.
type Config struct {
	Org       string          `yaml:"org"`
	DB        DBConfig        `yaml:"db"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Notify    NotifyConfig    `yaml:"notify"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Projects  []ProjectConfig `yaml:"projects"`
}

// DBConfig holds connection settings for the MySQL server.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ScannerConfig controls the watchman daemon cadence.
type ScannerConfig struct {
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	BatchLimit      int    `yaml:"batch_limit"`
	ReminderHours   int    `yaml:"reminder_hours"`
	DigestCron      string `yaml:"digest_cron"` // 5-field cron expression
}

// NotifyConfig configures side channels for high/urgent notifications.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	SMTP    SMTPConfig    `yaml:"smtp"`
}

// SlackConfig holds Slack bot credentials and the alert channel.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials and the alert channel.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// SMTPConfig holds mail relay settings for the email side channel.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DashboardConfig holds the HTTP dashboard settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// ProjectConfig defines a project seeded into the database at init.
type ProjectConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" && c.Org != "" {
		c.DB.Database = "fieldops_" + c.Org
	}
	if c.Scanner.PollIntervalSec == 0 {
		c.Scanner.PollIntervalSec = 60
	}
	if c.Scanner.BatchLimit == 0 {
		c.Scanner.BatchLimit = 500
	}
	if c.Scanner.ReminderHours == 0 {
		c.Scanner.ReminderHours = 24
	}
	if c.Scanner.DigestCron == "" {
		c.Scanner.DigestCron = "0 7 * * *"
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Org == "" {
		errs = append(errs, "org is required")
	}
	for i, p := range c.Projects {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("projects[%d].id is required", i))
		}
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("projects[%d].name is required", i))
		}
	}
	if c.Scanner.BatchLimit < 0 {
		errs = append(errs, "scanner.batch_limit must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
