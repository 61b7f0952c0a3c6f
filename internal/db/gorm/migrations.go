package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: user accounts
		{
			ID: "001_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users")
			},
		},

		// Migration 002: recommendation history with lifecycle state
		{
			ID: "002_recommendations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Recommendation{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("recommendations")
			},
		},

		// Migration 003: partial index for the reminder sweep
		{
			ID: "003_reminder_candidates_index",
			Migrate: func(tx *gorm.DB) error {
				// Both SQLite and PostgreSQL support partial indexes with this syntax.
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_recommendations_pending
					ON recommendations (created_at_epoch)
					WHERE state = 'pending'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_recommendations_pending").Error
			},
		},
	})

	return m.Migrate()
}
