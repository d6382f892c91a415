package slack

import (
	"fmt"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	mu      sync.Mutex
	posted  []postedMessage
	postErr error
}

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	return channelID, "1234567890.123456", nil
}

func (m *mockSlackClient) postedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

func newTestChannel(client slackClient) *Channel {
	return &Channel{client: client, channelID: "C_ALERTS"}
}

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New("", "C1"); err == nil {
		t.Fatal("expected error for missing bot token")
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	if _, err := New("xoxb-test", ""); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

func TestName(t *testing.T) {
	c := newTestChannel(&mockSlackClient{})
	if c.Name() != "slack" {
		t.Errorf("name = %q, want slack", c.Name())
	}
}

func TestPost_Success(t *testing.T) {
	client := &mockSlackClient{}
	c := newTestChannel(client)

	if err := c.Post("Budget Exceeded", "Task over allocation", "error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.postedCount() != 1 {
		t.Fatalf("expected 1 posted message, got %d", client.postedCount())
	}
	if client.posted[0].channelID != "C_ALERTS" {
		t.Errorf("channel = %q, want C_ALERTS", client.posted[0].channelID)
	}
	// Attachment plus fallback text.
	if len(client.posted[0].options) != 2 {
		t.Errorf("expected 2 message options, got %d", len(client.posted[0].options))
	}
}

func TestPost_Error(t *testing.T) {
	client := &mockSlackClient{postErr: fmt.Errorf("channel_not_found")}
	c := newTestChannel(client)

	if err := c.Post("t", "b", "info"); err == nil {
		t.Fatal("expected post error")
	}
	if client.postedCount() != 0 {
		t.Errorf("expected no recorded posts, got %d", client.postedCount())
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"success", colorSuccess},
		{"warning", colorWarning},
		{"error", colorError},
		{"info", colorInfo},
		{"", colorInfo},
		{"unknown", colorInfo},
	}
	for _, tt := range tests {
		if got := severityColor(tt.severity); got != tt.want {
			t.Errorf("severityColor(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestRetryOnRateLimit_Success(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(func() error {
		calls++
		return fmt.Errorf("some other error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("should not retry non-rate-limit errors, calls = %d", calls)
	}
}

func TestRetryOnRateLimit_RetriesAndSucceeds(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(func() error {
		calls++
		if calls < 3 {
			return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// maxRetries+1 total calls (initial + retries).
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestPost_RetriesOnRateLimit(t *testing.T) {
	client := &rateLimitedClient{failCount: 2}
	c := newTestChannel(client)

	if err := c.Post("t", "b", "warning"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", client.calls)
	}
}

// rateLimitedClient returns rate limit errors for the first N calls.
type rateLimitedClient struct {
	mu        sync.Mutex
	calls     int
	failCount int
}

func (r *rateLimitedClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	r.mu.Lock()
	r.calls++
	c := r.calls
	r.mu.Unlock()
	if c <= r.failCount {
		return "", "", &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	}
	return channelID, "ts", nil
}
