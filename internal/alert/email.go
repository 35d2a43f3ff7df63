package alert

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPSender dispatches alert emails over SMTP with TLS via gomail, direct
// translation of notifier.py's _send_email into a gomail dialer.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	to     []string
}

// NewSMTPSender builds an SMTPSender from the usual host/port/credential
// tuple plus one or more recipients.
func NewSMTPSender(host string, port int, from, password string, to []string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, from, password),
		from:   from,
		to:     to,
	}
}

// Send implements EmailSender.
func (s *SMTPSender) Send(ctx context.Context, subject, body string) error {
	if len(s.to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
