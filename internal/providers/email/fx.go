package email

import (
	"fmt"

	"github.com/smallbiznis/tasklane/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(NewMailerFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	// Defaults are already handled in internal/config
	switch cfg.Email.Provider {
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
		}), nil
	case "sendgrid":
		if cfg.Email.SendgridAPIKey == "" {
			return nil, fmt.Errorf("email provider sendgrid requires SENDGRID_API_KEY")
		}
		return NewSendgrid(cfg.Email.SendgridAPIKey), nil
	case "", "noop", "log":
		return NewLogProvider(log.Named("email")), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.Email.Provider)
	}
}

func NewMailerFromConfig(cfg config.Config, provider Provider) (Mailer, error) {
	return NewMailer(provider, MailerConfig{
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
		AppURL:   cfg.Email.AppURL,
	})
}
