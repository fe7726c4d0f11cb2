package email

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/config"
	gateway "github.com/nimasrn/studio-gateway/internal/gateways"
	"github.com/pkg/errors"
)

// NewFromConfig builds the sender selected by EMAIL_DRIVER. The returned
// close func releases background resources of the api driver.
func NewFromConfig(cfg *config.Config) (Sender, func(), error) {
	noop := func() {}
	switch cfg.EmailDriver {
	case "smtp":
		return NewInstrumented(NewSMTPSender(SMTPConfig{
			Host:     cfg.SmtpHost,
			Port:     cfg.SmtpPort,
			Username: cfg.SmtpUser,
			Password: cfg.SmtpPassword,
			From:     cfg.EmailFrom,
		})), noop, nil
	case "api":
		client, err := gateway.NewClient(&gateway.Config{
			Providers: []gateway.ProviderConfig{
				{Name: "primary", URL: cfg.EmailApiPrimaryUrl, Weight: 100},
				{Name: "secondary", URL: cfg.EmailApiSecondaryUrl, Weight: 60},
			},
			APIKey:     cfg.EmailApiKey,
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			RetryDelay: 250 * time.Millisecond,
		})
		if err != nil {
			return nil, noop, errors.Wrap(err, "email api client")
		}
		return NewInstrumented(NewAPISender(client, cfg.EmailFrom)), func() { _ = client.Close() }, nil
	default:
		return NewInstrumented(NewConsoleSender(cfg.EmailFrom)), noop, nil
	}
}
