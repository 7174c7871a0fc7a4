package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/gopinions/auth-service/config"
)

// Sender delivers a single email. Satisfied by Mailer; tests substitute
// their own implementation.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}
