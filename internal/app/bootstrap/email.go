package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/notify"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// BuildEmailSender selects the email provider. "auto" prefers SendGrid,
// then SES, then SMTP, and falls back to the stub sender.
func BuildEmailSender(awsCfg *aws.Config, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	provider := cfg.EmailProvider
	if provider == "" {
		provider = "auto"
	}

	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	ses := func() notify.EmailSender {
		if awsCfg == nil || cfg.SESFromEmail == "" {
			return nil
		}
		if s := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	smtp := func() notify.EmailSender {
		if s := notify.NewSMTPSender(notify.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}

	var candidates []func() notify.EmailSender
	switch provider {
	case "sendgrid":
		candidates = append(candidates, sendgrid)
	case "ses":
		candidates = append(candidates, ses)
	case "smtp":
		candidates = append(candidates, smtp)
	case "stub":
	default:
		candidates = append(candidates, sendgrid, ses, smtp)
	}

	for _, build := range candidates {
		if sender := build(); sender != nil {
			logger.Info("email sender configured", "provider", provider, "type", senderName(sender))
			return sender
		}
	}
	logger.Warn("no email provider configured; notifications are logged only", "provider", provider)
	return notify.NewStubEmailSender(logger)
}

func senderName(s notify.EmailSender) string {
	switch s.(type) {
	case *notify.SendGridSender:
		return "sendgrid"
	case *notify.SESSender:
		return "ses"
	case *notify.SMTPSender:
		return "smtp"
	default:
		return "stub"
	}
}
