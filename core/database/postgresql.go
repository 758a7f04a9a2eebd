package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type IDatabase interface {
	ExecContext(ctx context.Context, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	SQLx() *sqlx.DB
	Close() error
}

type Database struct {
	db   *sql.DB
	sqlx *sqlx.DB
}

// requiredTables are checked at startup so a missing migration shows up in
// the boot log instead of as the first failing sync or payout.
var requiredTables = []string{
	"bookings",
	"instructors",
	"payout_history",
	"calendar_integrations",
	"imported_events",
	"classes",
	"class_schedules",
	"payments",
	"webhook_events",
	"notifications",
}

func InitDB(cfg config.DatabaseConfig) (*Database, error) {
	logger.Info("Initializing database...")

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = constants.DatabaseSSLMode
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	sqlxDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB := sqlxDB.DB
	sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, constants.DatabaseMaxOpenConns))
	sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, constants.DatabaseMaxIdleConns))
	sqlDB.SetConnMaxLifetime(time.Duration(orDefault(cfg.ConnMaxLifetime, constants.DatabaseConnMaxLifetime)) * time.Minute)

	if err = sqlDB.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Database{db: sqlDB, sqlx: sqlxDB}

	logger.Info("Database initialized successfully",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DBName,
		"user", cfg.User,
	)

	db.checkSchema(context.Background())
	return db, nil
}

func (d *Database) checkSchema(ctx context.Context) {
	var present []string
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
	`
	if err := d.sqlx.SelectContext(ctx, &present, query); err != nil {
		logger.Error("Failed to inspect schema", "error", err)
		return
	}

	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}
	var missing []string
	for _, name := range requiredTables {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		logger.Warn("Database schema incomplete, run migrations", "missing_tables", missing)
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (d *Database) ExecContext(ctx context.Context, query string, args ...any) error {
	_, err := d.sqlx.ExecContext(ctx, query, args...)
	return err
}

func (d *Database) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.sqlx.GetContext(ctx, dest, query, args...)
}

func (d *Database) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.sqlx.SelectContext(ctx, dest, query, args...)
}

func (d *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *Database) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return d.sqlx.NamedExecContext(ctx, query, arg)
}

func (d *Database) SQLx() *sqlx.DB {
	return d.sqlx
}

func (d *Database) Close() error {
	return d.sqlx.Close()
}
