package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPNotifier delivers notifications over plain SMTP with optional AUTH.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPNotifier builds a notifier for the given host:port address. If user
// is empty no authentication is attempted.
func NewSMTPNotifier(addr, user, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if user != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPNotifier{addr: addr, auth: auth, from: from}
}

func (n *SMTPNotifier) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		n.from, to, subject, body)
	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) SendActivationCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("Welcome!\n\nYour confirmation code: %s\n\nIf you did not request this code, ignore this message.", code)
	return n.send(email, "Your activation code", body)
}

func (n *SMTPNotifier) SendResetPasswordLink(ctx context.Context, email, link string) error {
	body := fmt.Sprintf("To reset your password, follow the link:\n\n%s\n\nIf you did not request a reset, ignore this message.", link)
	return n.send(email, "Reset your password", body)
}

func (n *SMTPNotifier) SendChangeEmailLink(ctx context.Context, email, link string) error {
	body := fmt.Sprintf("To change your email address, follow the link:\n\n%s\n\nIf you did not request this change, ignore this message.", link)
	return n.send(email, "Confirm your email change", body)
}
