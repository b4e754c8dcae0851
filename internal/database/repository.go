package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kraken-trading-bot/internal/engine"
	"kraken-trading-bot/internal/position"
)

// Repository implements the engine's persistence boundary on PostgreSQL
type Repository struct {
	db *DB
}

// NewRepository creates a repository backed by the given database
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// GetBotConfig loads the single operator-owned configuration row
func (r *Repository) GetBotConfig(ctx context.Context) (*engine.BotConfig, error) {
	var cfg engine.BotConfig
	err := r.db.Pool.QueryRow(ctx, `
		SELECT strategy, risk_level, active_pairs,
		       max_pair_exposure_percent, max_total_exposure_percent,
		       stop_loss_percent, take_profit_percent,
		       trailing_stop_enabled, trailing_stop_percent,
		       daily_loss_limit_percent, is_active, updated_at
		FROM bot_config WHERE id = 1`,
	).Scan(
		&cfg.Strategy, &cfg.RiskLevel, &cfg.ActivePairs,
		&cfg.MaxPairExposurePercent, &cfg.MaxTotalExposurePercent,
		&cfg.StopLossPercent, &cfg.TakeProfitPercent,
		&cfg.TrailingStopEnabled, &cfg.TrailingStopPercent,
		&cfg.DailyLossLimitPercent, &cfg.IsActive, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("loading bot config: %w", err)
	}
	return &cfg, nil
}

// GetOpenPositions loads every persisted open position
func (r *Repository) GetOpenPositions(ctx context.Context) ([]position.Position, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT pair, amount, entry_price, highest_price, opened_at
		FROM open_positions`)
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var positions []position.Position
	for rows.Next() {
		var p position.Position
		if err := rows.Scan(&p.Pair, &p.Amount, &p.EntryPrice, &p.HighestPrice, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scanning open position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertOpenPosition writes a position, inserting or updating by pair
func (r *Repository) UpsertOpenPosition(ctx context.Context, p *position.Position) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO open_positions (pair, amount, entry_price, highest_price, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (pair) DO UPDATE SET
			amount = EXCLUDED.amount,
			entry_price = EXCLUDED.entry_price,
			highest_price = EXCLUDED.highest_price,
			updated_at = CURRENT_TIMESTAMP`,
		p.Pair, p.Amount, p.EntryPrice, p.HighestPrice, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting position for %s: %w", p.Pair, err)
	}
	return nil
}

// DeleteOpenPosition removes a closed position's row. Deleting a pair with
// no row is not an error.
func (r *Repository) DeleteOpenPosition(ctx context.Context, pair string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM open_positions WHERE pair = $1`, pair)
	if err != nil {
		return fmt.Errorf("deleting position for %s: %w", pair, err)
	}
	return nil
}

// RecordTrade appends a trade to the audit log
func (r *Repository) RecordTrade(ctx context.Context, t *engine.Trade) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trades (id, pair, side, volume, price, value_usd, order_id, strategy, reason, pnl, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Pair, t.Side, t.Volume, t.Price, t.ValueUSD, t.OrderID, t.Strategy, t.Reason, t.PnL, t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("recording trade %s: %w", t.ID, err)
	}
	return nil
}

// RecentTrades returns the most recent trades, newest first
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]engine.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, pair, side, volume, price, value_usd, order_id, strategy, reason, pnl, executed_at
		FROM trades ORDER BY executed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []engine.Trade
	for rows.Next() {
		var t engine.Trade
		if err := rows.Scan(&t.ID, &t.Pair, &t.Side, &t.Volume, &t.Price, &t.ValueUSD,
			&t.OrderID, &t.Strategy, &t.Reason, &t.PnL, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// IsNotFound reports whether an error is a missing-row error
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
