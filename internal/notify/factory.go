package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thebtf/lishe/internal/config"
)

// FromConfig builds the configured transport and wraps it in a Mailer.
func FromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Mailer, error) {
	nc := cfg.Notifier

	var (
		t   Transport
		err error
	)
	switch nc.Driver {
	case "smtp":
		t, err = NewSMTPTransport(SMTPConfig{
			Host:        nc.SMTPHost,
			Port:        nc.SMTPPort,
			Username:    nc.SMTPUsername,
			Password:    nc.SMTPPassword,
			From:        cfg.Sender(),
			TLS:         nc.SMTPTLS,
			DialTimeout: nc.SendTimeout,
		})
	case "ses":
		t, err = NewSESTransport(ctx, nc.SESRegion, cfg.Sender())
	case "log", "":
		t = NewLogTransport(logger)
	default:
		err = fmt.Errorf("unknown notifier driver %q", nc.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", nc.Driver, err)
	}

	return NewMailer(t, BreakerSettings{
		MaxFailures: nc.BreakerMaxFailures,
		OpenTimeout: nc.BreakerOpenTimeout,
		Interval:    nc.BreakerInterval,
		SendTimeout: nc.SendTimeout,
	}, logger), nil
}
