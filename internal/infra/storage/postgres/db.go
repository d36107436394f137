package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/walletwatch/internal/indexing/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultMaxConns    = 10
	defaultMinConns    = 2
	poolSampleInterval = 15 * time.Second
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// DB wraps the PostgreSQL connection.
type DB struct {
	*sqlx.DB
}

// NewDB opens the pool, pings it and applies migrations when cfg.Migrate is set.
// The state table and the tracked address table share one pool.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns, minConns := cfg.MaxConns, cfg.MinConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns <= 0 {
		minConns = defaultMinConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(min(minConns, maxConns))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	wrapped := &DB{DB: db}
	if cfg.Migrate {
		if err := wrapped.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return wrapped, nil
}

// NewFromSQLX wraps an existing handle. Used by tests with a mocked driver.
func NewFromSQLX(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// Migrate applies the embedded goose migrations.
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// StartMetricsCollector samples pool usage until ctx is done.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(poolSampleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.samplePoolUsage()
			}
		}
	}()
}

func (db *DB) samplePoolUsage() {
	stats := db.Stats()
	if stats.MaxOpenConnections == 0 {
		return
	}
	metrics.DBConnectionPoolUsage.Set(float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100)
}
