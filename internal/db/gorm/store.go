package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store represents the GORM database connection.
type Store struct {
	healthCacheTime time.Time
	DB              *gorm.DB
	sqlDB           *sql.DB
	latency         *latencyWindow
	cachedHealth    *HealthInfo
	driver          string
	healthCacheTTL  time.Duration
	slowQuery       time.Duration
	healthCacheMu   sync.RWMutex
}

// Config holds database configuration.
type Config struct {
	Driver   string          // postgres | sqlite (default: sqlite)
	DSN      string          // PostgreSQL DSN or SQLite file path
	MaxConns int             // Maximum number of open connections (default: 10)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// ParseLogLevel maps a config string to a GORM log level. Unknown values are silent.
func ParseLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}

func openDialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverSQLite, "":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
		return sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewStore opens the database, configures the pool and runs migrations.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: cfg.Driver == DriverPostgres,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	if cfg.Driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY on the conditional updates.
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(max(maxConns/2, 1))
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	store := &Store{
		DB:             db,
		sqlDB:          sqlDB,
		driver:         cfg.Driver,
		latency:        newLatencyWindow(100),
		healthCacheTTL: 5 * time.Second,
		slowQuery:      50 * time.Millisecond,
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Debug().Str("driver", cfg.Driver).Int("max_conns", maxConns).Msg("Database ready")
	return store, nil
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Health statuses reported by HealthCheck.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthCheck runs a trivial query and inspects pool contention.
// Results are cached for a few seconds so readiness checks stay cheap.
func (s *Store) HealthCheck(ctx context.Context) *HealthInfo {
	s.healthCacheMu.RLock()
	if s.cachedHealth != nil && time.Since(s.healthCacheTime) < s.healthCacheTTL {
		cached := s.cachedHealth
		s.healthCacheMu.RUnlock()
		return cached
	}
	s.healthCacheMu.RUnlock()

	info := s.check(ctx)

	s.healthCacheMu.Lock()
	s.cachedHealth = info
	s.healthCacheTime = time.Now()
	s.healthCacheMu.Unlock()

	return info
}

func (s *Store) check(ctx context.Context) *HealthInfo {
	stats := s.sqlDB.Stats()
	info := &HealthInfo{
		Status:          HealthHealthy,
		Driver:          s.driver,
		Timestamp:       time.Now(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
	}

	start := time.Now()
	var one int
	err := s.sqlDB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	info.QueryLatency = time.Since(start)
	s.latency.add(info.QueryLatency)
	info.P95Latency = s.latency.p95()

	switch {
	case err != nil:
		info.Status = HealthUnhealthy
		info.Error = err.Error()
	case info.P95Latency > s.slowQuery:
		info.Status = HealthDegraded
		info.Warning = fmt.Sprintf("p95 query latency %v above %v", info.P95Latency, s.slowQuery)
	case stats.WaitCount > 100 && stats.WaitDuration > 100*time.Millisecond:
		info.Status = HealthDegraded
		info.Warning = "connection pool contention"
	}
	return info
}

// HealthInfo is the result of one database check.
type HealthInfo struct {
	Timestamp       time.Time     `json:"timestamp"`
	Status          string        `json:"status"`
	Driver          string        `json:"driver"`
	Error           string        `json:"error,omitempty"`
	Warning         string        `json:"warning,omitempty"`
	QueryLatency    time.Duration `json:"query_latency_ns"`
	P95Latency      time.Duration `json:"p95_latency_ns,omitempty"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
}

// latencyWindow is a ring of recent health-check latencies.
type latencyWindow struct {
	samples []time.Duration
	next    int
	n       int
	mu      sync.Mutex
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.n < len(w.samples) {
		w.n++
	}
}

// p95 is zero until enough samples exist to make it meaningful.
func (w *latencyWindow) p95() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n < 20 {
		return 0
	}
	sorted := slices.Clone(w.samples[:w.n])
	slices.Sort(sorted)
	return sorted[len(sorted)*95/100]
}
