package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/lishe/pkg/models"
)

// RecordStore provides recommendation history operations using GORM.
// Every lifecycle transition is a single conditional UPDATE so that concurrent
// writers (several API replicas, a cron sweep) never apply the same transition twice.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a new record store.
func NewRecordStore(store *Store) *RecordStore {
	return &RecordStore{db: store.DB}
}

// Append stores a new record in the Pending state and sets its ID.
func (s *RecordStore) Append(ctx context.Context, rec *models.RecommendationRecord) (int64, error) {
	row := fromModelRecord(rec)
	row.ID = 0
	row.State = string(models.StatePending)
	row.EatenFoods = nil
	row.Rating.Valid = false
	row.Note.Valid = false
	row.ReminderSentAtEpoch.Valid = false
	row.FeedbackAtEpoch.Valid = false

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("insert recommendation: %w", err)
	}

	rec.ID = row.ID
	rec.State = models.StatePending
	rec.CreatedAt = time.UnixMilli(row.CreatedAtEpoch).UTC()
	return row.ID, nil
}

// Get returns one record by ID.
func (s *RecordStore) Get(ctx context.Context, id int64) (*models.RecommendationRecord, error) {
	var row Recommendation
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelRecord(&row), nil
}

// ListByEmail returns a user's records, newest first. limit <= 0 means no limit.
func (s *RecordStore) ListByEmail(ctx context.Context, email string, limit int) ([]*models.RecommendationRecord, error) {
	q := s.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		Order("created_at_epoch DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Recommendation
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModelRecords(rows), nil
}

// ListAll returns every record in insertion order.
func (s *RecordStore) ListAll(ctx context.Context) ([]*models.RecommendationRecord, error) {
	var rows []Recommendation
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModelRecords(rows), nil
}

// ReminderCandidates returns Pending records created at or before cutoff, oldest first.
func (s *RecordStore) ReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*models.RecommendationRecord, error) {
	q := s.db.WithContext(ctx).
		Where("state = ? AND created_at_epoch <= ?", string(models.StatePending), cutoff.UnixMilli()).
		Order("created_at_epoch ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Recommendation
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModelRecords(rows), nil
}

// ClaimReminder applies Pending -> Reminded if the record is still Pending.
// It reports whether this caller won the claim.
func (s *RecordStore) ClaimReminder(ctx context.Context, id int64, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Recommendation{}).
		Where("id = ? AND state = ?", id, string(models.StatePending)).
		Updates(map[string]interface{}{
			"state":                  string(models.StateReminded),
			"reminder_sent_at_epoch": now.UnixMilli(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim reminder %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ReleaseReminder returns a claimed record to Pending after a failed send.
// Records that moved on to Completed in the meantime are left alone.
func (s *RecordStore) ReleaseReminder(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).
		Model(&Recommendation{}).
		Where("id = ? AND state = ?", id, string(models.StateReminded)).
		Updates(map[string]interface{}{
			"state":                  string(models.StatePending),
			"reminder_sent_at_epoch": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("release reminder %d: %w", id, result.Error)
	}
	return nil
}

// SaveFeedback persists a record that already went through SubmitFeedback.
// The update only applies while the stored record is still open; otherwise
// ErrFeedbackClosed is returned and nothing changes.
func (s *RecordStore) SaveFeedback(ctx context.Context, rec *models.RecommendationRecord) error {
	if rec.State != models.StateCompleted {
		return fmt.Errorf("save feedback %d: record state is %s", rec.ID, rec.State)
	}
	row := fromModelRecord(rec)

	result := s.db.WithContext(ctx).
		Model(&Recommendation{}).
		Where("id = ? AND state IN ?", rec.ID, []string{string(models.StatePending), string(models.StateReminded)}).
		Updates(map[string]interface{}{
			"state":             string(models.StateCompleted),
			"eaten_foods":       row.EatenFoods,
			"rating":            row.Rating,
			"note":              row.Note,
			"feedback_at_epoch": row.FeedbackAtEpoch,
		})
	if result.Error != nil {
		return fmt.Errorf("save feedback %d: %w", rec.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Recommendation{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrRecordNotFound
		}
		return models.ErrFeedbackClosed
	}
	return nil
}

// CountByState returns the number of records per lifecycle state.
func (s *RecordStore) CountByState(ctx context.Context) (map[models.RecordState]int64, error) {
	var rows []struct {
		State string
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&Recommendation{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.RecordState]int64, len(rows))
	for _, r := range rows {
		out[models.RecordState(r.State)] = r.Count
	}
	return out, nil
}

func toModelRecords(rows []Recommendation) []*models.RecommendationRecord {
	out := make([]*models.RecommendationRecord, 0, len(rows))
	for i := range rows {
		out = append(out, toModelRecord(&rows[i]))
	}
	return out
}
