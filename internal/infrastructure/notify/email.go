package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailBroadcaster mails alert notifications to administrators.
type EmailBroadcaster struct {
	addr       string
	from       string
	recipients []string
	send       SendFunc
	now        func() time.Time
}

// NewEmailBroadcaster sends through the SMTP relay at addr without auth.
func NewEmailBroadcaster(addr, from string, recipients []string) *EmailBroadcaster {
	return &EmailBroadcaster{
		addr:       addr,
		from:       from,
		recipients: recipients,
		send:       smtp.SendMail,
		now:        time.Now,
	}
}

// Deliver sends one email for env to every recipient.
func (b *EmailBroadcaster) Deliver(_ context.Context, env *Envelope) error {
	if len(b.recipients) == 0 {
		return nil
	}
	if err := b.send(b.addr, nil, b.from, b.recipients, b.compose(env)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func (b *EmailBroadcaster) compose(env *Envelope) []byte {
	subject := fmt.Sprintf("[stockledger] %s %s", env.String("alert_type"), strings.TrimPrefix(env.Type, "alert."))

	var body strings.Builder
	body.WriteString(env.String("message"))
	body.WriteString("\r\n\r\n")
	fmt.Fprintf(&body, "Risk score: %.0f\r\n", env.Float("risk_score"))
	fmt.Fprintf(&body, "Product: %s\r\n", env.String("product_id"))
	fmt.Fprintf(&body, "Alert: %s\r\n", env.String("alert_id"))
	if note := env.String("resolution_note"); note != "" {
		fmt.Fprintf(&body, "Resolution: %s\r\n", note)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", b.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(b.recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", b.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body.String())
	return []byte(msg.String())
}
