// Package mailer sends notification emails over SMTP and records every
// attempt in the email_logs audit table.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/models"
)

// Email log statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// sendFunc matches smtp.SendMail, injected for testing.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends email through a configured SMTP relay.
type SMTP struct {
	db   *gorm.DB
	cfg  config.SMTPConfig
	send sendFunc
}

// NewSMTP creates a mailer backed by the given SMTP relay.
func NewSMTP(db *gorm.DB, cfg config.SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}
	return &SMTP{db: db, cfg: cfg, send: smtp.SendMail}, nil
}

// Send delivers a plain-text email and writes an audit row. The audit row
// is written for failures as well, carrying the delivery error.
func (m *SMTP) Send(to, subject, body string) error {
	msg := buildMessage(m.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	err := m.send(addr, auth, m.cfg.From, []string{to}, msg)

	logEntry := models.EmailLog{
		Recipient: to,
		Subject:   subject,
		Status:    StatusSent,
	}
	if err != nil {
		logEntry.Status = StatusFailed
		logEntry.Error = err.Error()
	}
	if logErr := m.db.Create(&logEntry).Error; logErr != nil {
		// Audit failure must not mask the delivery result.
		if err == nil {
			return fmt.Errorf("mailer: log email: %w", logErr)
		}
	}

	if err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles an RFC 5322 plain-text message.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
