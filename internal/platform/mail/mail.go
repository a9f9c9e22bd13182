// Package mail delivers transactional email such as password-reset links.
package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Text).
		Msg("mail not delivered: no provider configured")
	return nil
}

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	from *sgmail.Email
	send func(ctx context.Context, email *sgmail.SGMailV3) (int, string, error)
}

func NewSendGridMailer(apiKey, fromAddress, fromName string) *SendGridMailer {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridMailer{
		from: sgmail.NewEmail(fromName, fromAddress),
		send: func(ctx context.Context, email *sgmail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, email)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	email := sgmail.NewV3Mail()
	email.SetFrom(m.from)
	email.Subject = msg.Subject
	email.AddPersonalizations(p)
	// SendGrid rejects empty content parts.
	if msg.Text != "" {
		email.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		email.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	status, body, err := m.send(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", status, body)
	}
	return nil
}
