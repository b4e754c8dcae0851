// Package database provides PostgreSQL persistence for positions, trades and
// bot configuration, plus Redis-backed daily risk state.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool and verifies it
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes schema migrations and seeds the default bot config
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS open_positions (
			pair VARCHAR(20) PRIMARY KEY,
			amount DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			highest_price DECIMAL(20, 8) NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			pair VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			volume DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			value_usd DECIMAL(20, 8) NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			strategy VARCHAR(50),
			reason TEXT,
			pnl DECIMAL(20, 8) DEFAULT 0,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at)`,

		`CREATE TABLE IF NOT EXISTS bot_config (
			id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			strategy VARCHAR(50) NOT NULL DEFAULT 'momentum',
			risk_level VARCHAR(20) NOT NULL DEFAULT 'medium',
			active_pairs TEXT[] NOT NULL DEFAULT '{}',
			max_pair_exposure_percent DECIMAL(6, 2) NOT NULL DEFAULT 25,
			max_total_exposure_percent DECIMAL(6, 2) NOT NULL DEFAULT 80,
			stop_loss_percent DECIMAL(6, 2) NOT NULL DEFAULT 0,
			take_profit_percent DECIMAL(6, 2) NOT NULL DEFAULT 0,
			trailing_stop_enabled BOOLEAN NOT NULL DEFAULT false,
			trailing_stop_percent DECIMAL(6, 2) NOT NULL DEFAULT 1.5,
			daily_loss_limit_percent DECIMAL(6, 2) NOT NULL DEFAULT 5,
			is_active BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO bot_config (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}
