// Package notify delivers plain-text email through a pluggable transport
// guarded by a circuit breaker.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/thebtf/lishe/internal/metrics"
)

// Notifier sends one message and reports whether it was accepted for delivery.
// Implementations never panic and never return an error.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// Transport is a concrete delivery backend.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, to, subject, body string) error
}

// BreakerSettings configures the circuit breaker in front of a transport.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // open -> half-open
	Interval    time.Duration // closed-state count reset; 0 keeps counts until a state change
	SendTimeout time.Duration // per-message deadline; 0 means none
}

// DefaultBreakerSettings returns the settings used when none are configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures: 5,
		OpenTimeout: time.Minute,
		Interval:    5 * time.Minute,
		SendTimeout: 30 * time.Second,
	}
}

// Mailer is the Notifier used by the service. It wraps a Transport with a
// breaker, a send timeout, logging and metrics.
type Mailer struct {
	transport Transport
	cb        *gobreaker.CircuitBreaker[struct{}]
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewMailer wraps a transport.
func NewMailer(t Transport, st BreakerSettings, logger zerolog.Logger) *Mailer {
	if st.MaxFailures == 0 {
		st.MaxFailures = DefaultBreakerSettings().MaxFailures
	}
	name := "notify-" + t.Name()
	log := logger.With().Str("component", "notify").Str("backend", t.Name()).Logger()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    st.Interval,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Mailer{
		transport: t,
		cb:        cb,
		logger:    log,
		timeout:   st.SendTimeout,
	}
}

// Backend returns the transport name.
func (m *Mailer) Backend() string {
	return m.transport.Name()
}

// State returns the breaker state as a string (closed, half-open, open).
func (m *Mailer) State() string {
	return m.cb.State().String()
}

// Send implements Notifier.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) (ok bool) {
	backend := m.transport.Name()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("to", to).Msg("Transport panicked")
			metrics.NotificationsTotal.WithLabelValues(backend, "failed").Inc()
			ok = false
		}
	}()

	to = strings.TrimSpace(to)
	if to == "" {
		metrics.NotificationsTotal.WithLabelValues(backend, "skipped").Inc()
		m.logger.Debug().Str("subject", subject).Msg("No recipient, message dropped")
		return false
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	_, err := m.cb.Execute(func() (struct{}, error) {
		return struct{}{}, m.transport.Deliver(ctx, to, subject, body)
	})
	if err != nil {
		result := "failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.NotificationsTotal.WithLabelValues(backend, result).Inc()
		m.logger.Warn().Err(err).Str("to", to).Str("subject", subject).Str("result", result).Msg("Email not sent")
		return false
	}

	metrics.NotificationsTotal.WithLabelValues(backend, "sent").Inc()
	m.logger.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return true
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
