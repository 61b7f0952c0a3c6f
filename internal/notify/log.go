package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport writes messages to the log instead of sending them.
// It is the development default.
type LogTransport struct {
	logger zerolog.Logger
}

// NewLogTransport creates a log transport.
func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Name implements Transport.
func (t *LogTransport) Name() string { return "log" }

// Deliver implements Transport.
func (t *LogTransport) Deliver(_ context.Context, to, subject, body string) error {
	t.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("Email (log transport)")
	return nil
}
