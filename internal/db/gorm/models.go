package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/lishe/pkg/models"
)

// GORM Models

// Note: JSON column types (JSONStringArray, GroupFoodsList) come from pkg/models
// and already implement sql.Scanner and driver.Valuer.

// User is a registered account.
type User struct {
	Email          string `gorm:"uniqueIndex;not null"`
	Name           string `gorm:"not null"`
	PasswordHash   string `gorm:"not null"`
	CreatedAt      string `gorm:"not null"`
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	CreatedAtEpoch int64  `gorm:"not null"`
	IsAdmin        bool   `gorm:"default:false"`
}

func (User) TableName() string { return "users" }

// BeforeCreate hook to ensure timestamps are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAtEpoch == 0 {
		u.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.UnixMilli(u.CreatedAtEpoch).UTC().Format(time.RFC3339)
	}
	return nil
}

// Recommendation is one stored recommendation record.
// Field order optimized for memory alignment (fieldalignment).
type Recommendation struct {
	Email               string                 `gorm:"index:idx_recommendations_email_created,priority:1;not null"`
	UserName            string                 `gorm:"type:text"`
	Sex                 string                 `gorm:"type:text"`
	ActivityLevel       string                 `gorm:"type:text"`
	Goal                string                 `gorm:"type:text;not null"`
	State               string                 `gorm:"type:text;check:state IN ('pending', 'reminded', 'completed');default:'pending';index:idx_recommendations_state_created,priority:1;not null"`
	CreatedAt           string                 `gorm:"not null"`
	Groups              models.JSONStringArray `gorm:"type:text"`
	Foods               models.GroupFoodsList  `gorm:"type:text"`
	EatenFoods          models.JSONStringArray `gorm:"type:text"`
	Note                sql.NullString         `gorm:"type:text"`
	Rating              sql.NullInt64
	ReminderSentAtEpoch sql.NullInt64
	FeedbackAtEpoch     sql.NullInt64
	ID                  int64   `gorm:"primaryKey;autoIncrement"`
	CreatedAtEpoch      int64   `gorm:"index:idx_recommendations_email_created,priority:2,sort:desc;index:idx_recommendations_state_created,priority:2;not null"`
	HeightM             float64 `gorm:"type:real"`
	WeightKg            float64 `gorm:"type:real"`
	BMI                 float64 `gorm:"column:bmi;type:real"`
	BMR                 float64 `gorm:"column:bmr;type:real"`
	TDEE                float64 `gorm:"column:tdee;type:real"`
	Age                 int
}

func (Recommendation) TableName() string { return "recommendations" }

// BeforeCreate hook to ensure timestamps and the initial state are set.
func (r *Recommendation) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.UnixMilli(r.CreatedAtEpoch).UTC().Format(time.RFC3339)
	}
	if r.State == "" {
		r.State = string(models.StatePending)
	}
	return nil
}

func epochPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullEpoch(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func toModelRecord(r *Recommendation) *models.RecommendationRecord {
	rec := &models.RecommendationRecord{
		ID:             r.ID,
		Email:          r.Email,
		UserName:       r.UserName,
		Sex:            r.Sex,
		ActivityLevel:  r.ActivityLevel,
		Goal:           r.Goal,
		State:          models.RecordState(r.State),
		Groups:         r.Groups,
		Foods:          r.Foods,
		EatenFoods:     r.EatenFoods,
		Note:           r.Note.String,
		HeightM:        r.HeightM,
		WeightKg:       r.WeightKg,
		Age:            r.Age,
		BMI:            r.BMI,
		BMR:            r.BMR,
		TDEE:           r.TDEE,
		CreatedAt:      time.UnixMilli(r.CreatedAtEpoch).UTC(),
		ReminderSentAt: epochPtr(r.ReminderSentAtEpoch),
		FeedbackAt:     epochPtr(r.FeedbackAtEpoch),
	}
	if r.Rating.Valid {
		v := int(r.Rating.Int64)
		rec.Rating = &v
	}
	return rec
}

func fromModelRecord(rec *models.RecommendationRecord) *Recommendation {
	r := &Recommendation{
		ID:                  rec.ID,
		Email:               models.NormalizeEmail(rec.Email),
		UserName:            rec.UserName,
		Sex:                 rec.Sex,
		ActivityLevel:       rec.ActivityLevel,
		Goal:                rec.Goal,
		State:               string(rec.State),
		Groups:              rec.Groups,
		Foods:               rec.Foods,
		EatenFoods:          rec.EatenFoods,
		Note:                sqlNullString(rec.Note),
		HeightM:             rec.HeightM,
		WeightKg:            rec.WeightKg,
		Age:                 rec.Age,
		BMI:                 rec.BMI,
		BMR:                 rec.BMR,
		TDEE:                rec.TDEE,
		ReminderSentAtEpoch: nullEpoch(rec.ReminderSentAt),
		FeedbackAtEpoch:     nullEpoch(rec.FeedbackAt),
	}
	if !rec.CreatedAt.IsZero() {
		r.CreatedAtEpoch = rec.CreatedAt.UnixMilli()
	}
	if rec.Rating != nil {
		r.Rating = sql.NullInt64{Int64: int64(*rec.Rating), Valid: true}
	}
	return r
}

func toModelUser(u *User) *models.User {
	return &models.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsAdmin:   u.IsAdmin,
		CreatedAt: time.UnixMilli(u.CreatedAtEpoch).UTC(),
	}
}
