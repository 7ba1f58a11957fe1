package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/wolfman30/project-intake/pkg/logging"
)

// smtpDialer is the subset of gomail.Dialer used by SMTPSender.
type smtpDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds configuration for plain SMTP delivery.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPSender sends emails through an SMTP relay.
type SMTPSender struct {
	dialer    smtpDialer
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSMTPSender creates an SMTP sender. It returns nil when no host is set.
func NewSMTPSender(cfg SMTPConfig, logger *logging.Logger) *SMTPSender {
	if cfg.Host == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SMTPSender{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send delivers msg. gomail has no context support, so ctx is only checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.dialer == nil {
		return fmt.Errorf("notify: smtp dialer not configured")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromEmail, s.fromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("smtp send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}

	s.logger.Info("email sent via smtp", "to", msg.To, "subject", msg.Subject)
	return nil
}

var _ EmailSender = (*SMTPSender)(nil)
