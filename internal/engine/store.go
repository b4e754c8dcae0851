package engine

import (
	"context"
	"time"

	"kraken-trading-bot/internal/position"
)

// BotConfig is the runtime configuration the engine re-reads at the start of
// every cycle, so operator changes apply without a restart.
type BotConfig struct {
	Strategy                string
	RiskLevel               string
	ActivePairs             []string
	MaxPairExposurePercent  float64
	MaxTotalExposurePercent float64
	StopLossPercent         float64
	TakeProfitPercent       float64
	TrailingStopEnabled     bool
	TrailingStopPercent     float64
	DailyLossLimitPercent   float64
	IsActive                bool
	UpdatedAt               time.Time
}

// Trade is the immutable record of one executed order
type Trade struct {
	ID         string
	Pair       string
	Side       string
	Volume     float64
	Price      float64
	ValueUSD   float64
	OrderID    string
	Strategy   string
	Reason     string
	PnL        float64
	ExecutedAt time.Time
}

// Store is the persistence boundary for the engine: open positions survive
// restarts, trades form the audit log, and bot config is operator-owned.
type Store interface {
	GetBotConfig(ctx context.Context) (*BotConfig, error)
	GetOpenPositions(ctx context.Context) ([]position.Position, error)
	UpsertOpenPosition(ctx context.Context, p *position.Position) error
	DeleteOpenPosition(ctx context.Context, pair string) error
	RecordTrade(ctx context.Context, t *Trade) error
}
