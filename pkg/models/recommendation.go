package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// RecordState is the lifecycle state of a recommendation record.
type RecordState string

const (
	// StatePending means the record was created and nothing else happened yet.
	StatePending RecordState = "pending"
	// StateReminded means the feedback reminder has been dispatched.
	StateReminded RecordState = "reminded"
	// StateCompleted means feedback was recorded. Terminal.
	StateCompleted RecordState = "completed"
)

// RecordStates lists every state in lifecycle order.
var RecordStates = []RecordState{StatePending, StateReminded, StateCompleted}

// Valid reports whether s is one of the known states.
func (s RecordState) Valid() bool {
	switch s {
	case StatePending, StateReminded, StateCompleted:
		return true
	}
	return false
}

// MaxRating is the highest progress rating a user can give.
const MaxRating = 4

// Lifecycle errors. A failed transition never modifies the record.
var (
	ErrRecordNotFound     = errors.New("recommendation not found")
	ErrFeedbackClosed     = errors.New("recommendation already has feedback")
	ErrNoEatenFoods       = errors.New("at least one eaten food is required")
	ErrFeedbackTooEarly   = errors.New("feedback is not open yet")
	ErrAlreadyReminded    = errors.New("reminder already sent")
	ErrReminderNotDue     = errors.New("reminder is not due")
	ErrReminderNotClaimed = errors.New("reminder is not claimed")
)

// JSONStringArray is a string slice stored as a JSON text column.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	data, err := scanBytes(src, "JSONStringArray")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GroupFoods is the ranked food list produced for one food group.
type GroupFoods struct {
	Group string   `json:"group"`
	Foods []string `json:"foods"`
}

// GroupFoodsList is stored as a JSON text column, preserving group order.
type GroupFoodsList []GroupFoods

// Scan implements sql.Scanner for GroupFoodsList.
func (g *GroupFoodsList) Scan(src interface{}) error {
	data, err := scanBytes(src, "GroupFoodsList")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*g = nil
		return nil
	}
	return json.Unmarshal(data, g)
}

// Value implements driver.Valuer for GroupFoodsList.
func (g GroupFoodsList) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBytes(src interface{}, typeName string) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", typeName, src)
	}
}

// Feedback is what a user reports about a recommendation after trying it.
type Feedback struct {
	Note       string   `json:"note"`
	EatenFoods []string `json:"eaten_foods"`
	Rating     int      `json:"rating"`
}

// RecommendationRecord is the output of one recommendation run for one user.
// Field order optimized for memory alignment (fieldalignment).
type RecommendationRecord struct {
	CreatedAt      time.Time       `json:"created_at"`
	ReminderSentAt *time.Time      `json:"reminder_sent_at,omitempty"`
	FeedbackAt     *time.Time      `json:"feedback_at,omitempty"`
	Rating         *int            `json:"rating,omitempty"`
	Email          string          `json:"email"`
	UserName       string          `json:"user_name"`
	Sex            string          `json:"sex"`
	ActivityLevel  string          `json:"activity_level"`
	Goal           string          `json:"goal"`
	State          RecordState     `json:"state"`
	Note           string          `json:"note,omitempty"`
	Groups         JSONStringArray `json:"groups"`
	Foods          GroupFoodsList  `json:"foods"`
	EatenFoods     JSONStringArray `json:"eaten_foods,omitempty"`
	ID             int64           `json:"id"`
	HeightM        float64         `json:"height_m"`
	WeightKg       float64         `json:"weight_kg"`
	BMI            float64         `json:"bmi"`
	BMR            float64         `json:"bmr"`
	TDEE           float64         `json:"tdee"`
	Age            int             `json:"age"`
}

// RecommendedFoods returns every recommended food name once, in group order.
func (r *RecommendationRecord) RecommendedFoods() []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range r.Foods {
		for _, f := range g.Foods {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// ReminderDue reports whether the Pending -> Reminded transition is allowed at now.
func (r *RecommendationRecord) ReminderDue(now time.Time, interval time.Duration) bool {
	return r.State == StatePending && !now.Before(r.CreatedAt.Add(interval))
}

// MarkReminded applies Pending -> Reminded.
func (r *RecommendationRecord) MarkReminded(now time.Time, interval time.Duration) error {
	switch r.State {
	case StateCompleted:
		return ErrFeedbackClosed
	case StateReminded:
		return ErrAlreadyReminded
	}
	if !r.ReminderDue(now, interval) {
		return ErrReminderNotDue
	}
	sent := now
	r.ReminderSentAt = &sent
	r.State = StateReminded
	return nil
}

// ReleaseReminder undoes a reminder claim whose notification could not be delivered.
func (r *RecommendationRecord) ReleaseReminder() error {
	if r.State != StateReminded {
		return ErrReminderNotClaimed
	}
	r.ReminderSentAt = nil
	r.State = StatePending
	return nil
}

// FeedbackOpen reports whether feedback can be submitted at now.
func (r *RecommendationRecord) FeedbackOpen(now time.Time, cooldown time.Duration) bool {
	return r.State != StateCompleted && !now.Before(r.CreatedAt.Add(cooldown))
}

// SubmitFeedback applies (Pending|Reminded) -> Completed.
// Rating and note are stored as given; eaten foods are trimmed and blanks dropped.
func (r *RecommendationRecord) SubmitFeedback(fb Feedback, now time.Time, cooldown time.Duration) error {
	if r.State == StateCompleted {
		return ErrFeedbackClosed
	}
	eaten := NormalizeFoods(fb.EatenFoods)
	if len(eaten) == 0 {
		return ErrNoEatenFoods
	}
	if now.Before(r.CreatedAt.Add(cooldown)) {
		return ErrFeedbackTooEarly
	}

	at := now
	rating := fb.Rating
	r.EatenFoods = eaten
	r.Rating = &rating
	r.Note = fb.Note
	r.FeedbackAt = &at
	r.State = StateCompleted
	return nil
}

// NormalizeFoods trims names and drops blanks and duplicates.
func NormalizeFoods(foods []string) []string {
	seen := make(map[string]bool, len(foods))
	out := make([]string, 0, len(foods))
	for _, f := range foods {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
