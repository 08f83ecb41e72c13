package offer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// ErrMailerDisabled is returned by a mailer without SMTP settings.
var ErrMailerDisabled = errors.New("mailer is not configured")

// Attachment is a file sent along with a message.
type Attachment struct {
	Name string
	Data []byte
}

type Mailer interface {
	Deliver(ctx context.Context, to, subject, body string, attachment Attachment) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer returns a mailer, or nil when host or sender are missing.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Host == "" || cfg.From == "" {
		return nil
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Deliver(ctx context.Context, to, subject, body string, attachment Attachment) error {
	if m == nil {
		return ErrMailerDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if len(attachment.Data) > 0 {
		data := attachment.Data
		msg.Attach(attachment.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
