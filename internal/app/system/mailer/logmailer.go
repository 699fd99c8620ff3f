package mailer

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LogMailer writes emails to the log instead of sending them. Used in
// development (mail_mode=log).
type LogMailer struct {
	Log *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{Log: logger}
}

// Send logs the email.
func (m *LogMailer) Send(_ context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return ErrNoRecipient
	}
	m.Log.Info("email (log mode)",
		zap.String("to", e.To),
		zap.String("subject", e.Subject),
		zap.Int("text_bytes", len(e.TextBody)),
		zap.Int("html_bytes", len(e.HTMLBody)))
	return nil
}
