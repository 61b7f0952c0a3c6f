package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 14 * 24 * time.Hour
	testCooldown = time.Minute
)

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newRecord() *RecommendationRecord {
	return &RecommendationRecord{
		ID:        7,
		Email:     "asha@example.com",
		Goal:      "Afya ya Moyo",
		Groups:    JSONStringArray{"A1", "D1"},
		Foods:     GroupFoodsList{{Group: "A1", Foods: []string{"Mtama", "Ulezi"}}, {Group: "D1", Foods: []string{"Samaki", "Mtama"}}},
		State:     StatePending,
		CreatedAt: created,
	}
}

func TestRecordState_Valid(t *testing.T) {
	assert.True(t, StatePending.Valid())
	assert.True(t, StateReminded.Valid())
	assert.True(t, StateCompleted.Valid())
	assert.False(t, RecordState("archived").Valid())
}

func TestRecommendedFoods(t *testing.T) {
	assert.Equal(t, []string{"Mtama", "Ulezi", "Samaki"}, newRecord().RecommendedFoods())
}

func TestReminderDue(t *testing.T) {
	tests := []struct {
		name  string
		state RecordState
		now   time.Time
		want  bool
	}{
		{"before interval", StatePending, created.Add(testInterval - time.Second), false},
		{"exactly at interval", StatePending, created.Add(testInterval), true},
		{"after interval", StatePending, created.Add(testInterval + time.Hour), true},
		{"already reminded", StateReminded, created.Add(testInterval * 2), false},
		{"completed", StateCompleted, created.Add(testInterval * 2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecord()
			r.State = tt.state
			assert.Equal(t, tt.want, r.ReminderDue(tt.now, testInterval))
		})
	}
}

func TestMarkReminded(t *testing.T) {
	t.Run("pending and due", func(t *testing.T) {
		r := newRecord()
		now := created.Add(testInterval)

		require.NoError(t, r.MarkReminded(now, testInterval))
		assert.Equal(t, StateReminded, r.State)
		require.NotNil(t, r.ReminderSentAt)
		assert.Equal(t, now, *r.ReminderSentAt)
	})

	t.Run("fires at most once", func(t *testing.T) {
		r := newRecord()
		now := created.Add(testInterval)
		require.NoError(t, r.MarkReminded(now, testInterval))

		err := r.MarkReminded(now.Add(time.Hour), testInterval)
		assert.ErrorIs(t, err, ErrAlreadyReminded)
		assert.Equal(t, now, *r.ReminderSentAt)
	})

	t.Run("not due leaves record unchanged", func(t *testing.T) {
		r := newRecord()
		before := *r

		err := r.MarkReminded(created.Add(time.Hour), testInterval)
		assert.ErrorIs(t, err, ErrReminderNotDue)
		assert.Equal(t, before, *r)
	})

	t.Run("completed is terminal", func(t *testing.T) {
		r := newRecord()
		require.NoError(t, r.SubmitFeedback(Feedback{EatenFoods: []string{"Mtama"}}, created.Add(time.Hour), testCooldown))

		err := r.MarkReminded(created.Add(testInterval), testInterval)
		assert.ErrorIs(t, err, ErrFeedbackClosed)
		assert.Equal(t, StateCompleted, r.State)
		assert.Nil(t, r.ReminderSentAt)
	})
}

func TestReleaseReminder(t *testing.T) {
	r := newRecord()
	assert.ErrorIs(t, r.ReleaseReminder(), ErrReminderNotClaimed)

	require.NoError(t, r.MarkReminded(created.Add(testInterval), testInterval))
	require.NoError(t, r.ReleaseReminder())
	assert.Equal(t, StatePending, r.State)
	assert.Nil(t, r.ReminderSentAt)
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("pending to completed", func(t *testing.T) {
		r := newRecord()
		now := created.Add(2 * time.Minute)

		err := r.SubmitFeedback(Feedback{EatenFoods: []string{" Mtama ", "", "Samaki", "Mtama"}, Rating: 3, Note: "nzuri"}, now, testCooldown)
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, r.State)
		assert.Equal(t, JSONStringArray{"Mtama", "Samaki"}, r.EatenFoods)
		require.NotNil(t, r.Rating)
		assert.Equal(t, 3, *r.Rating)
		assert.Equal(t, "nzuri", r.Note)
		assert.Equal(t, now, *r.FeedbackAt)
	})

	t.Run("reminded to completed", func(t *testing.T) {
		r := newRecord()
		require.NoError(t, r.MarkReminded(created.Add(testInterval), testInterval))

		err := r.SubmitFeedback(Feedback{EatenFoods: []string{"Ulezi"}}, created.Add(testInterval+time.Hour), testCooldown)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, r.State)
	})

	t.Run("no eaten foods", func(t *testing.T) {
		r := newRecord()
		before := *r

		err := r.SubmitFeedback(Feedback{EatenFoods: []string{" ", ""}, Rating: 4}, created.Add(time.Hour), testCooldown)
		assert.ErrorIs(t, err, ErrNoEatenFoods)
		assert.Equal(t, before, *r)
	})

	t.Run("inside cooldown", func(t *testing.T) {
		r := newRecord()

		err := r.SubmitFeedback(Feedback{EatenFoods: []string{"Mtama"}}, created.Add(30*time.Second), testCooldown)
		assert.ErrorIs(t, err, ErrFeedbackTooEarly)
		assert.Equal(t, StatePending, r.State)
	})

	t.Run("second submission rejected", func(t *testing.T) {
		r := newRecord()
		require.NoError(t, r.SubmitFeedback(Feedback{EatenFoods: []string{"Mtama"}, Rating: 1}, created.Add(time.Hour), testCooldown))

		err := r.SubmitFeedback(Feedback{EatenFoods: []string{"Samaki"}, Rating: 4}, created.Add(2*time.Hour), testCooldown)
		assert.ErrorIs(t, err, ErrFeedbackClosed)
		assert.Equal(t, JSONStringArray{"Mtama"}, r.EatenFoods)
		assert.Equal(t, 1, *r.Rating)
	})
}

func TestFeedbackOpen(t *testing.T) {
	r := newRecord()
	assert.False(t, r.FeedbackOpen(created.Add(59*time.Second), testCooldown))
	assert.True(t, r.FeedbackOpen(created.Add(testCooldown), testCooldown))

	r.State = StateCompleted
	assert.False(t, r.FeedbackOpen(created.Add(time.Hour), testCooldown))
}

func TestJSONColumns(t *testing.T) {
	var arr JSONStringArray
	require.NoError(t, arr.Scan(`["a","b"]`))
	assert.Equal(t, JSONStringArray{"a", "b"}, arr)

	require.NoError(t, arr.Scan(nil))
	assert.Nil(t, arr)

	assert.Error(t, arr.Scan(42))

	v, err := JSONStringArray(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var groups GroupFoodsList
	require.NoError(t, groups.Scan([]byte(`[{"group":"A1","foods":["Mtama"]}]`)))
	require.Len(t, groups, 1)
	assert.Equal(t, "A1", groups[0].Group)

	v, err = groups.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"group":"A1","foods":["Mtama"]}]`, v.(string))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "asha@example.com", NormalizeEmail("  Asha@Example.COM "))
}
