package gorm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"

	"github.com/thebtf/lishe/pkg/models"
)

// testStore creates a Store backed by a temporary SQLite file.
func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{
		Driver:   DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUserStore(t *testing.T) *UserStore {
	t.Helper()
	us := NewUserStore(testStore(t))
	us.cost = bcrypt.MinCost
	return us
}

func sampleRecord(email string, created time.Time) *models.RecommendationRecord {
	return &models.RecommendationRecord{
		Email:         email,
		UserName:      "Asha",
		Sex:           "F",
		ActivityLevel: "Moderate",
		Goal:          "Afya ya Moyo",
		Groups:        models.JSONStringArray{"A1", "D1"},
		Foods: models.GroupFoodsList{
			{Group: "A1", Foods: []string{"Mtama", "Ulezi"}},
			{Group: "D1", Foods: []string{"Samaki"}},
		},
		HeightM:   1.65,
		WeightKg:  60,
		Age:       25,
		BMI:       22.04,
		BMR:       1345.25,
		TDEE:      2085.14,
		CreatedAt: created,
	}
}
