// Package gorm provides the GORM-backed record and user stores for lishe.
//
// Two drivers are supported: PostgreSQL for deployments and SQLite (pure Go,
// via modernc.org/sqlite) for development and tests. Schema changes run
// through gormigrate on every NewStore call.
//
// # Usage
//
//	store, err := gorm.NewStore(gorm.Config{
//	    Driver:   gorm.DriverSQLite,
//	    DSN:      "lishe.db",
//	    LogLevel: logger.Silent,
//	})
//	records := gorm.NewRecordStore(store)
//	users := gorm.NewUserStore(store)
//
// # Lifecycle updates
//
// Reminder claims, claim releases and feedback are each a single conditional
// UPDATE guarded on the current state. A caller that loses the race sees zero
// affected rows and must not act on the record.
package gorm
