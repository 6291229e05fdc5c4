package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/taskboard/taskboard/pkg/config"
)

// SMTPSender delivers email through a plain SMTP relay
type SMTPSender struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewSMTPSender creates an email sender, or nil when no SMTP host is
// configured so the email channel degrades to a logged no-op.
func NewSMTPSender(cfg config.NotifyConfig) *SMTPSender {
	if cfg.SMTPHost == "" {
		return nil
	}
	return &SMTPSender{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.SMTPFrom,
	}
}

// Send delivers one email. The context is accepted for interface
// symmetry; net/smtp does not support cancellation mid-send.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	addr := s.host + ":" + s.port

	msg := "From: " + s.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
