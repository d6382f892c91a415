// Package slack implements the notify SideChannel for Slack.
package slack

import (
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// Color constants for notification severity.
const (
	colorSuccess = "#36a64f"
	colorInfo    = "#2196f3"
	colorWarning = "#ff9800"
	colorError   = "#e53935"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Channel posts notifications to a single Slack channel.
type Channel struct {
	client    slackClient
	channelID string
}

// New creates a Slack channel from a bot token and channel ID.
func New(botToken, channelID string) (*Channel, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	return &Channel{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}, nil
}

// Name identifies the channel in logs.
func (c *Channel) Name() string { return "slack" }

// Post sends a notification as a colored attachment, retrying on
// Slack rate limits.
func (c *Channel) Post(title, body, severity string) error {
	attachment := slackapi.Attachment{
		Color: severityColor(severity),
		Title: title,
		Text:  body,
	}

	err := retryOnRateLimit(func() error {
		_, _, postErr := c.client.PostMessage(c.channelID,
			slackapi.MsgOptionAttachments(attachment),
			slackapi.MsgOptionText(title, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// severityColor maps a notification type to a sidebar color.
func severityColor(severity string) string {
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

// retryOnRateLimit calls fn and retries with backoff on Slack rate
// limit errors, respecting the RetryAfter duration from Slack.
func retryOnRateLimit(fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		time.Sleep(wait)
	}
	return nil // unreachable
}
