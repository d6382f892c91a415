// Package discord implements the notify SideChannel for Discord.
package discord

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// baseBackoff is the initial backoff duration for rate limit retries.
const baseBackoff = 2 * time.Second

// Embed colors for notification severity.
const (
	colorSuccess = 0x36a64f
	colorInfo    = 0x2196f3
	colorWarning = 0xff9800
	colorError   = 0xe53935
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Channel posts notifications to a single Discord channel over the REST API.
// No Gateway connection is opened; embeds are sent directly.
type Channel struct {
	sess      session
	channelID string
}

// New creates a Discord channel from a bot token and channel ID.
func New(botToken, channelID string) (*Channel, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Channel{sess: dg, channelID: channelID}, nil
}

// Name identifies the channel in logs.
func (c *Channel) Name() string { return "discord" }

// Post sends a notification as a colored embed, retrying on rate limits.
func (c *Channel) Post(title, body, severity string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       severityColor(severity),
	}

	err := retryOnRateLimit(func() error {
		_, sendErr := c.sess.ChannelMessageSendEmbed(c.channelID, embed)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// severityColor maps a notification type to an embed color.
func severityColor(severity string) int {
	switch severity {
	case "success":
		return colorSuccess
	case "warning":
		return colorWarning
	case "error":
		return colorError
	default:
		return colorInfo
	}
}

// retryOnRateLimit calls fn and retries with exponential backoff on
// Discord rate limit errors.
func retryOnRateLimit(fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}

		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)
		time.Sleep(wait)
	}
	return nil // unreachable
}
