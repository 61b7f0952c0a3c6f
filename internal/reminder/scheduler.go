// Package reminder sends feedback reminders for recommendations that have
// gone unanswered for the reminder interval.
package reminder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/lishe/internal/config"
	"github.com/thebtf/lishe/internal/metrics"
	"github.com/thebtf/lishe/internal/notify"
	"github.com/thebtf/lishe/pkg/models"
)

// Subject is the reminder email subject line.
const Subject = "Ukumbusho: Tafadhali toa mrejesho kwa mapendekezo yako ya vyakula"

// RecordProvider is the subset of record store methods needed by the scheduler.
type RecordProvider interface {
	ReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*models.RecommendationRecord, error)
	ClaimReminder(ctx context.Context, id int64, now time.Time) (bool, error)
	ReleaseReminder(ctx context.Context, id int64) error
	CountByState(ctx context.Context) (map[models.RecordState]int64, error)
}

// Config contains the reminder interval and sweep settings.
type Config struct {
	// Interval is how long a record waits for feedback before a reminder (default 14 days).
	Interval time.Duration
	// SweepInterval is the period between sweeps (default 1h).
	SweepInterval time.Duration
	// MaxConcurrent bounds parallel sends within one sweep.
	MaxConcurrent int
	// BatchLimit caps candidates per sweep; 0 means no cap.
	BatchLimit int
}

// DefaultConfig returns the default reminder configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      14 * 24 * time.Hour,
		SweepInterval: time.Hour,
		MaxConcurrent: 4,
		BatchLimit:    500,
	}
}

// ConfigFrom extracts the scheduler settings from the application config.
func ConfigFrom(cfg config.ReminderConfig) Config {
	return Config{
		Interval:      cfg.Interval,
		SweepInterval: cfg.SweepInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		BatchLimit:    cfg.BatchLimit,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Scheduler runs the reminder sweep on a ticker.
type Scheduler struct {
	store    RecordProvider
	notifier notify.Notifier
	now      func() time.Time
	stopCh   chan struct{}
	logger   zerolog.Logger
	group    singleflight.Group
	config   Config
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(store RecordProvider, notifier notify.Notifier, config Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		config:   config,
		logger:   logger.With().Str("component", "reminder-scheduler").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done or
// Stop is called. Call from a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("sweep_interval", s.config.SweepInterval).
		Int("max_concurrent", s.config.MaxConcurrent).
		Msg("Reminder scheduler started")

	s.tick(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reminder scheduler stopping (context done)")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Reminder scheduler stopping (stop signal)")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunSweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Reminder sweep failed")
	}
}

// Stop signals the scheduler to shut down gracefully.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		// Already stopped
	default:
		close(s.stopCh)
	}
}

// Serve runs the scheduler under a supervisor.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Start(ctx)
	return ctx.Err()
}

func (s *Scheduler) String() string { return "reminder-scheduler" }

// RunSweep reminds every due record once. Calls that overlap an in-flight
// sweep wait for it and share its result.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepResult, error) {
	v, err, shared := s.group.Do("sweep", func() (interface{}, error) {
		return s.sweep(ctx)
	})
	if shared {
		s.logger.Debug().Msg("Joined in-flight reminder sweep")
	}
	res, _ := v.(SweepResult)
	return res, err
}

func (s *Scheduler) sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { metrics.ReminderSweepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	candidates, err := s.store.ReminderCandidates(ctx, now.Add(-s.config.Interval), s.config.BatchLimit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list reminder candidates: %w", err)
	}
	if len(candidates) == 0 {
		s.refreshStateGauge(ctx)
		return SweepResult{}, nil
	}

	var sent, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for _, rec := range candidates {
		g.Go(func() error {
			switch s.remind(gctx, rec, now) {
			case "sent":
				sent.Add(1)
			case "failed":
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Candidates: len(candidates),
		Sent:       int(sent.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
	}
	s.logger.Info().
		Int("candidates", res.Candidates).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Reminder sweep complete")
	s.refreshStateGauge(ctx)
	return res, ctx.Err()
}

func (s *Scheduler) refreshStateGauge(ctx context.Context) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Count records by state failed")
		return
	}
	for _, st := range models.RecordStates {
		metrics.RecordsByState.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

// remind claims, sends and, on failure, releases one record. It returns the
// metric result label.
func (s *Scheduler) remind(ctx context.Context, rec *models.RecommendationRecord, now time.Time) string {
	result := s.dispatch(ctx, rec, now)
	metrics.RemindersTotal.WithLabelValues(result).Inc()
	return result
}

func (s *Scheduler) dispatch(ctx context.Context, rec *models.RecommendationRecord, now time.Time) string {
	// the in-memory transition decides eligibility, the store claim decides ownership
	if err := rec.MarkReminded(now, s.config.Interval); err != nil {
		s.logger.Debug().Err(err).Int64("record_id", rec.ID).Msg("Reminder skipped")
		return "skipped"
	}

	won, err := s.store.ClaimReminder(ctx, rec.ID, now)
	if err != nil {
		s.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("Claim failed")
		return "failed"
	}
	if !won {
		// another sweep or a feedback submission got there first
		return "skipped"
	}

	if s.notifier.Send(ctx, rec.Email, Subject, Body(rec)) {
		return "sent"
	}

	if err := rec.ReleaseReminder(); err != nil {
		s.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("Release rejected")
	}
	// release with a fresh context so a cancelled sweep still frees the claim
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.ReleaseReminder(releaseCtx, rec.ID); err != nil {
		s.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("Release after failed send failed")
	}
	return "failed"
}

// Body renders the reminder text for a record.
func Body(rec *models.RecommendationRecord) string {
	greeting := "Habari"
	if rec.UserName != "" {
		greeting += " " + rec.UserName
	}
	return fmt.Sprintf(
		"%s,\n\nTafadhali ingia kwenye app na toa mrejesho kwa mapendekezo ya %s uliyopata tarehe %s.\n\nAsante.",
		greeting, rec.Goal, rec.CreatedAt.Format("2006-01-02 15:04"),
	)
}
