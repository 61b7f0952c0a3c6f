package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate returns the first invalid setting found, or nil.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return errors.New("server.rate_limit_reqs: must not be negative")
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return errors.New("server.rate_limit_window: must be positive when rate limiting is on")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver: unsupported %q (want postgres or sqlite)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn: required")
	}
	switch c.Database.LogLevel {
	case "", "silent", "error", "warn", "info":
	default:
		return fmt.Errorf("database.log_level: unsupported %q", c.Database.LogLevel)
	}

	if strings.TrimSpace(c.Catalog.Path) == "" {
		return errors.New("catalog.path: required")
	}
	if strings.TrimSpace(c.Catalog.NameColumn) == "" {
		return errors.New("catalog.name_column: required")
	}

	if c.Recommend.MaxTopN < 1 {
		return errors.New("recommend.max_top_n: must be at least 1")
	}
	if c.Recommend.DefaultTopN < 1 || c.Recommend.DefaultTopN > c.Recommend.MaxTopN {
		return fmt.Errorf("recommend.default_top_n: must be between 1 and %d", c.Recommend.MaxTopN)
	}

	if c.Reminder.Interval <= 0 {
		return errors.New("reminder.interval: must be positive")
	}
	if c.Reminder.Enabled && c.Reminder.SweepInterval <= 0 {
		return errors.New("reminder.sweep_interval: must be positive")
	}
	if c.Reminder.MaxConcurrent < 1 {
		return errors.New("reminder.max_concurrent: must be at least 1")
	}
	if c.Feedback.Cooldown < 0 {
		return errors.New("feedback.cooldown: must not be negative")
	}

	switch c.Notifier.Driver {
	case "log":
	case "smtp":
		if c.Notifier.SMTPHost == "" {
			return errors.New("notifier.smtp_host: required for smtp driver")
		}
		if c.Notifier.SMTPPort < 1 || c.Notifier.SMTPPort > 65535 {
			return fmt.Errorf("notifier.smtp_port: %d out of range", c.Notifier.SMTPPort)
		}
		if c.Notifier.From == "" && c.Admin.Email == "" {
			return errors.New("notifier.from: required for smtp driver")
		}
	case "ses":
		if c.Notifier.SESRegion == "" {
			return errors.New("notifier.ses_region: required for ses driver")
		}
		if c.Notifier.From == "" && c.Admin.Email == "" {
			return errors.New("notifier.from: required for ses driver")
		}
	default:
		return fmt.Errorf("notifier.driver: unsupported %q (want smtp, ses or log)", c.Notifier.Driver)
	}

	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("admin.email and admin.password: set both or neither")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format: unsupported %q", c.Logging.Format)
	}
	return nil
}

// Sender returns the From address used for outgoing email.
func (c *Config) Sender() string {
	if c.Notifier.From != "" {
		return c.Notifier.From
	}
	return c.Admin.Email
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
