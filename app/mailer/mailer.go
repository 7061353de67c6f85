package mailer

import (
	"context"
	"fmt"

	"github.com/playshelf/playshelf-api/config"

	"github.com/wneessen/go-mail"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("reset mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("reset mail to: %w", err)
	}
	msg.Subject("Password Reset Request")
	msg.SetBodyString(mail.TypeTextHTML, fmt.Sprintf(
		`<p>You requested a password reset.</p>
<p>Click <a href="%s">here</a> to reset your password.</p>`, resetURL))

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	return client.DialAndSendWithContext(ctx, msg)
}
