package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/storefront/identity-api/internal/core/ports"
)

// Config captures the settings for the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPNotifier delivers mail through a plain SMTP relay. It is the only
// Notifier implementation that leaves the process; everything upstream talks
// to the ports.Notifier interface.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
}

func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPNotifier{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
	}
}

// Send delivers one message. Blocking I/O; callers that must not wait hand
// the message to the queue.Mailer instead.
func (n *SMTPNotifier) Send(ctx context.Context, msg ports.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(n.addr, n.auth, msg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
