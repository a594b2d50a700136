package alerts

import (
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// EmailSender sends one alert email.
type EmailSender interface {
	Send(to, subject, body string) error
}

// SMTPSender delivers email over SMTP with STARTTLS and credential login.
// Missing configuration is detected at send time so the SMS channel keeps
// working when SMTP is not set up.
type SMTPSender struct {
	cfg    config.AlertsConfig
	logger *logger.Logger
}

// NewSMTPSender creates an SMTP email sender
func NewSMTPSender(cfg config.AlertsConfig, logger *logger.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.Named("email-sender"),
	}
}

// Send submits one message. Returns an error when SMTP is unconfigured or
// submission fails; the caller decides whether that is fatal.
func (s *SMTPSender) Send(to, subject, body string) error {
	if s.cfg.SMTPServer == "" || s.cfg.SMTPUser == "" || s.cfg.SMTPPassword == "" {
		return fmt.Errorf("email channel not configured (missing SMTP server or credentials)")
	}
	if to == "" {
		return fmt.Errorf("missing recipient address")
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("invalid from address %q: %w", s.cfg.FromEmail, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(s.cfg.SMTPServer,
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(s.cfg.SMTPUser),
		mail.WithPassword(s.cfg.SMTPPassword),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.Info("Email alert sent", logger.String("to", to), logger.String("subject", subject))
	return nil
}
