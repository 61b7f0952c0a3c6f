// Package recommend runs a recommendation request end to end: ranking,
// body metrics, persistence, events and the optional email.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/lishe/internal/bodymetrics"
	"github.com/thebtf/lishe/internal/catalog"
	"github.com/thebtf/lishe/internal/config"
	"github.com/thebtf/lishe/internal/metrics"
	"github.com/thebtf/lishe/internal/notify"
	"github.com/thebtf/lishe/internal/scoring"
	"github.com/thebtf/lishe/internal/validation"
	"github.com/thebtf/lishe/pkg/models"
)

var (
	// ErrUnknownFood is returned when feedback names a food that was not recommended.
	ErrUnknownFood = errors.New("eaten food was not recommended")
	// ErrInvalidRequest wraps request problems not covered by struct validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// RecordStore is the subset of record store methods the service needs.
type RecordStore interface {
	Append(ctx context.Context, rec *models.RecommendationRecord) (int64, error)
	Get(ctx context.Context, id int64) (*models.RecommendationRecord, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]*models.RecommendationRecord, error)
	SaveFeedback(ctx context.Context, rec *models.RecommendationRecord) error
}

// Broadcaster publishes service events to live listeners.
type Broadcaster interface {
	Broadcast(data interface{})
}

// Config tunes the service.
type Config struct {
	DefaultTopN      int
	MaxTopN          int
	FeedbackCooldown time.Duration
	// EmailResult sends every new recommendation to the requester.
	EmailResult bool
}

// ConfigFrom extracts the service settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DefaultTopN:      cfg.Recommend.DefaultTopN,
		MaxTopN:          cfg.Recommend.MaxTopN,
		FeedbackCooldown: cfg.Feedback.Cooldown,
		EmailResult:      cfg.Recommend.EmailResult,
	}
}

// Service implements the recommendation workflow.
type Service struct {
	engine   *scoring.Engine
	catalog  *catalog.Holder
	store    RecordStore
	notifier notify.Notifier
	events   Broadcaster
	now      func() time.Time
	logger   zerolog.Logger
	config   Config
}

// NewService creates a recommendation service. events may be nil.
func NewService(
	engine *scoring.Engine,
	holder *catalog.Holder,
	store RecordStore,
	notifier notify.Notifier,
	events Broadcaster,
	config Config,
	logger zerolog.Logger,
) *Service {
	if config.MaxTopN < 1 {
		config.MaxTopN = 50
	}
	if config.DefaultTopN < 1 || config.DefaultTopN > config.MaxTopN {
		config.DefaultTopN = min(5, config.MaxTopN)
	}
	return &Service{
		engine:   engine,
		catalog:  holder,
		store:    store,
		notifier: notifier,
		events:   events,
		now:      time.Now,
		config:   config,
		logger:   logger.With().Str("component", "recommend").Logger(),
	}
}

// Engine returns the ranking engine.
func (s *Service) Engine() *scoring.Engine {
	return s.engine
}

// Request is one recommendation request.
type Request struct {
	Email   string              `json:"email" validate:"required,email"`
	Name    string              `json:"name" validate:"max=200"`
	Goal    string              `json:"goal" validate:"required"`
	Groups  []string            `json:"groups" validate:"required,min=1,dive,required"`
	Profile bodymetrics.Profile `json:"profile"`
	TopN    int                 `json:"top_n" validate:"gte=0"`
	// SendEmail asks for the food list to be emailed right away.
	SendEmail bool `json:"send_email"`
}

// FoodEntry is one ranked food with its nutrient highlights.
type FoodEntry struct {
	Name       string                    `json:"name"`
	Highlights models.NutrientHighlights `json:"highlights"`
	Score      float64                   `json:"score"`
	Code       int                       `json:"code"`
}

// GroupEntry is the ranked list for one requested group.
type GroupEntry struct {
	Code  string      `json:"code"`
	Name  string      `json:"name"`
	Foods []FoodEntry `json:"foods"`
}

// Response is the result of Create.
type Response struct {
	// Record is nil when no group produced any food; nothing is stored then.
	Record  *models.RecommendationRecord `json:"record,omitempty"`
	Emailed *bool                        `json:"emailed,omitempty"`
	Goal    string                       `json:"goal"`
	Columns []string                     `json:"columns"`
	Groups  []GroupEntry                 `json:"groups"`
	Metrics bodymetrics.Metrics          `json:"metrics"`
}

// Create ranks foods for the request, stores the record and optionally emails it.
func (s *Service) Create(ctx context.Context, req Request) (*Response, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	topN := req.TopN
	if topN == 0 {
		topN = s.config.DefaultTopN
	}
	if topN > s.config.MaxTopN {
		return nil, fmt.Errorf("%w: top_n must be between 1 and %d", ErrInvalidRequest, s.config.MaxTopN)
	}
	groups := make([]string, 0, len(req.Groups))
	for _, g := range req.Groups {
		groups = append(groups, strings.TrimSpace(g))
	}

	snapshot := s.catalog.Get()
	tables := s.engine.Tables()
	if _, ok := tables.Goal(req.Goal); !ok {
		s.logger.Warn().Str("goal", req.Goal).Msg("Unknown goal, all scores will be zero")
	}

	start := time.Now()
	result := s.engine.Recommend(snapshot, req.Goal, groups, topN)
	metrics.EngineDuration.Observe(time.Since(start).Seconds())

	resp := &Response{
		Goal:    result.Goal,
		Columns: result.Columns,
		Groups:  make([]GroupEntry, 0, len(result.Groups)),
		Metrics: req.Profile.Compute(),
	}
	total := 0
	codes := make([]string, 0, len(result.Groups))
	for _, g := range result.Groups {
		codes = append(codes, g.Group)
		entry := GroupEntry{Code: g.Group, Foods: make([]FoodEntry, 0, len(g.Foods))}
		if fg, ok := tables.Group(g.Group); ok {
			entry.Name = fg.Name
		}
		for _, f := range g.Foods {
			fe := FoodEntry{Name: f.Name, Score: f.Score, Code: f.Code}
			if item, ok := snapshot.ByCode(f.Code); ok {
				fe.Highlights = models.HighlightsOf(item)
			}
			entry.Foods = append(entry.Foods, fe)
		}
		total += len(g.Foods)
		resp.Groups = append(resp.Groups, entry)
	}

	if total == 0 {
		s.logger.Info().Str("goal", req.Goal).Strs("groups", groups).Msg("No foods matched, nothing stored")
		return resp, nil
	}

	rec := &models.RecommendationRecord{
		Email:         models.NormalizeEmail(req.Email),
		UserName:      strings.TrimSpace(req.Name),
		Sex:           strings.ToUpper(strings.TrimSpace(req.Profile.Sex)),
		ActivityLevel: string(resp.Metrics.ActivityLevel),
		Goal:          req.Goal,
		Groups:        models.JSONStringArray(codes),
		Foods:         result.Names(),
		HeightM:       req.Profile.HeightM,
		WeightKg:      req.Profile.WeightKg,
		Age:           req.Profile.Age,
		BMI:           resp.Metrics.BMI,
		BMR:           resp.Metrics.BMR,
		TDEE:          resp.Metrics.TDEE,
		CreatedAt:     s.now().UTC(),
	}
	if _, err := s.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("store recommendation: %w", err)
	}
	resp.Record = rec

	metrics.RecommendationsServed.WithLabelValues(req.Goal).Inc()
	s.broadcast("recommendation_created", rec)
	s.logger.Info().
		Int64("record_id", rec.ID).
		Str("goal", rec.Goal).
		Int("foods", total).
		Msg("Recommendation stored")

	if req.SendEmail || s.config.EmailResult {
		ok := s.notifier.Send(ctx, rec.Email, Subject(rec.Goal), FoodsText(rec))
		resp.Emailed = &ok
	}
	return resp, nil
}

// History returns a user's records, newest first.
func (s *Service) History(ctx context.Context, email string) ([]*models.RecommendationRecord, error) {
	return s.store.ListByEmail(ctx, email, 0)
}

// Eligible returns the records the user can give feedback on right now.
func (s *Service) Eligible(ctx context.Context, email string) ([]*models.RecommendationRecord, error) {
	recs, err := s.store.ListByEmail(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*models.RecommendationRecord, 0, len(recs))
	for _, r := range recs {
		if r.FeedbackOpen(now, s.config.FeedbackCooldown) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FeedbackRequest is the feedback body for one record.
type FeedbackRequest struct {
	Email      string   `json:"email" validate:"required,email"`
	Note       string   `json:"note" validate:"max=2000"`
	EatenFoods []string `json:"eaten_foods"`
	Rating     int      `json:"rating" validate:"gte=0,lte=4"`
}

// SubmitFeedback records feedback for one of the user's records.
func (s *Service) SubmitFeedback(ctx context.Context, id int64, req FeedbackRequest) (*models.RecommendationRecord, error) {
	if err := validation.Struct(req); err != nil {
		metrics.FeedbackRecorded.WithLabelValues("rejected").Inc()
		return nil, err
	}
	rec, err := s.ownedRecord(ctx, id, req.Email)
	if err != nil {
		metrics.FeedbackRecorded.WithLabelValues("rejected").Inc()
		return nil, err
	}

	eaten := models.NormalizeFoods(req.EatenFoods)
	recommended := make(map[string]bool)
	for _, f := range rec.RecommendedFoods() {
		recommended[f] = true
	}
	for _, f := range eaten {
		if !recommended[f] {
			metrics.FeedbackRecorded.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %q", ErrUnknownFood, f)
		}
	}

	fb := models.Feedback{EatenFoods: eaten, Rating: req.Rating, Note: strings.TrimSpace(req.Note)}
	if err := rec.SubmitFeedback(fb, s.now().UTC(), s.config.FeedbackCooldown); err != nil {
		metrics.FeedbackRecorded.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := s.store.SaveFeedback(ctx, rec); err != nil {
		metrics.FeedbackRecorded.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.FeedbackRecorded.WithLabelValues("recorded").Inc()
	s.broadcast("feedback_recorded", rec)
	s.logger.Info().Int64("record_id", rec.ID).Int("eaten", len(eaten)).Msg("Feedback recorded")
	return rec, nil
}

// EmailRecommendation sends a record's food list to its owner again.
func (s *Service) EmailRecommendation(ctx context.Context, id int64, email string) (bool, error) {
	rec, err := s.ownedRecord(ctx, id, email)
	if err != nil {
		return false, err
	}
	return s.notifier.Send(ctx, rec.Email, Subject(rec.Goal), FoodsText(rec)), nil
}

// ownedRecord loads a record and hides records of other users.
func (s *Service) ownedRecord(ctx context.Context, id int64, email string) (*models.RecommendationRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if email != "" && models.NormalizeEmail(email) != rec.Email {
		return nil, models.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Service) broadcast(kind string, rec *models.RecommendationRecord) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(map[string]interface{}{
		"type":  kind,
		"id":    rec.ID,
		"goal":  rec.Goal,
		"state": rec.State,
	})
}

// Subject is the email subject for a recommendation.
func Subject(goal string) string {
	return fmt.Sprintf("Mapendekezo ya Vyakula (%s)", goal)
}

// FoodsText renders the recommended foods one per line.
func FoodsText(rec *models.RecommendationRecord) string {
	return strings.Join(rec.RecommendedFoods(), "\n")
}
