// Package config provides configuration management for lishe.
package config

import (
	"time"
)

const (
	// DefaultPort is the default HTTP port for the API server.
	DefaultPort = 8501

	// DefaultCatalogPath is the stock nutrient catalog file.
	DefaultCatalogPath = "VYAKULA.csv"

	// DefaultTopN is the number of foods returned per group when a request omits it.
	DefaultTopN = 5

	// MaxTopN caps the per-group result length a request can ask for.
	MaxTopN = 50
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Tables    TablesConfig    `koanf:"tables"`
	Recommend RecommendConfig `koanf:"recommend"`
	Reminder  ReminderConfig  `koanf:"reminder"`
	Feedback  FeedbackConfig  `koanf:"feedback"`
	Notifier  NotifierConfig  `koanf:"notifier"`
	Admin     AdminConfig     `koanf:"admin"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	Driver   string `koanf:"driver"` // postgres | sqlite
	DSN      string `koanf:"dsn"`
	LogLevel string `koanf:"log_level"` // silent | error | warn | info
	MaxConns int    `koanf:"max_conns"`
}

// CatalogConfig locates the nutrient catalog CSV.
type CatalogConfig struct {
	Path       string        `koanf:"path"`
	NameColumn string        `koanf:"name_column"`
	Watch      bool          `koanf:"watch"`
	Debounce   time.Duration `koanf:"debounce"`
}

// TablesConfig points at an optional YAML override for the goal and group tables.
type TablesConfig struct {
	Path string `koanf:"path"`
}

// RecommendConfig tunes recommendation requests.
type RecommendConfig struct {
	DefaultTopN int  `koanf:"default_top_n"`
	MaxTopN     int  `koanf:"max_top_n"`
	EmailResult bool `koanf:"email_result"`
}

// ReminderConfig controls the feedback reminder sweep.
type ReminderConfig struct {
	Interval      time.Duration `koanf:"interval"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	Enabled       bool          `koanf:"enabled"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	BatchLimit    int           `koanf:"batch_limit"`
}

// FeedbackConfig controls when feedback is accepted.
type FeedbackConfig struct {
	Cooldown time.Duration `koanf:"cooldown"`
}

// NotifierConfig selects and configures the email backend.
type NotifierConfig struct {
	Driver       string `koanf:"driver"` // smtp | ses | log
	From         string `koanf:"from"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SESRegion    string `koanf:"ses_region"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPTLS      bool   `koanf:"smtp_tls"`

	SendTimeout        time.Duration `koanf:"send_timeout"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
}

// AdminConfig seeds the admin account and guards admin endpoints.
type AdminConfig struct {
	Email    string `koanf:"email"`
	Name     string `koanf:"name"`
	Password string `koanf:"password"`
	Token    string `koanf:"token"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "lishe.db",
			MaxConns: 10,
			LogLevel: "silent",
		},
		Catalog: CatalogConfig{
			Path:       DefaultCatalogPath,
			NameColumn: "Chakula",
			Watch:      true,
			Debounce:   500 * time.Millisecond,
		},
		Recommend: RecommendConfig{
			DefaultTopN: DefaultTopN,
			MaxTopN:     MaxTopN,
			EmailResult: true,
		},
		Reminder: ReminderConfig{
			Enabled:       true,
			Interval:      14 * 24 * time.Hour,
			SweepInterval: time.Hour,
			MaxConcurrent: 4,
			BatchLimit:    500,
		},
		Feedback: FeedbackConfig{
			Cooldown: time.Minute,
		},
		Notifier: NotifierConfig{
			Driver:             "log",
			SMTPHost:           "smtp.gmail.com",
			SMTPPort:           465,
			SMTPTLS:            true,
			SESRegion:          "us-east-1",
			SendTimeout:        30 * time.Second,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: time.Minute,
			BreakerInterval:    5 * time.Minute,
		},
		Admin: AdminConfig{
			Name: "Admin",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
