// Package risk gates new entries behind position sizing, exposure caps and
// a daily-loss circuit breaker. The gate only ever blocks entries; protective
// exits are evaluated elsewhere and run regardless of gate state.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DailyState tracks the running daily P&L and the loss-limit latch.
// LastResetDate is a calendar date in YYYY-MM-DD form; the state resets
// when the wall-clock date rolls over.
type DailyState struct {
	DailyPnL          float64   `json:"daily_pnl"`
	DailyStartBalance float64   `json:"daily_start_balance"`
	LastResetDate     string    `json:"last_reset_date"`
	LimitReached      bool      `json:"limit_reached"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StateStore persists the daily risk state so the loss latch survives a
// restart. Implementations must tolerate being unavailable; the manager
// treats store failures as log-only.
type StateStore interface {
	LoadDailyState(ctx context.Context) (*DailyState, error)
	SaveDailyState(ctx context.Context, state *DailyState) error
}

// SizeResult is the outcome of position sizing
type SizeResult struct {
	TradeUSD     float64
	Volume       float64
	SmallAccount bool // sizing used the 95%-of-balance fallback
}

// GateResult is the outcome of an exposure check
type GateResult struct {
	Allowed   bool
	BlockedBy string // "pair" or "total" when not allowed
	Reason    string
}

// Manager owns the daily risk state and implements the entry gates.
// It is mutated only from within a cycle's sequential execution.
type Manager struct {
	profile Config
	state   DailyState
	store   StateStore
	logger  zerolog.Logger
}

// NewManager creates a risk manager with the given profile. The store may
// be nil, in which case the daily state lives only in memory.
func NewManager(profile Config, store StateStore, logger zerolog.Logger) *Manager {
	return &Manager{
		profile: profile,
		store:   store,
		logger:  logger.With().Str("component", "risk").Logger(),
	}
}

// Restore loads the persisted daily state, if any. Called once at startup.
func (m *Manager) Restore(ctx context.Context) {
	if m.store == nil {
		return
	}
	state, err := m.store.LoadDailyState(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not restore daily risk state")
		return
	}
	if state != nil {
		m.state = *state
		m.logger.Info().
			Str("date", state.LastResetDate).
			Float64("daily_pnl", state.DailyPnL).
			Bool("limit_reached", state.LimitReached).
			Msg("daily risk state restored")
	}
}

// SetProfile swaps the active risk profile. Called at cycle start when the
// configured risk level changed.
func (m *Manager) SetProfile(profile Config) {
	m.profile = profile
}

// Profile returns the active risk profile
func (m *Manager) Profile() Config {
	return m.profile
}

// BeginCycle rolls the daily state over when the calendar date changed,
// snapshotting the starting balance and clearing the loss latch.
func (m *Manager) BeginCycle(ctx context.Context, now time.Time, balance float64) {
	today := now.Format("2006-01-02")
	if m.state.LastResetDate == today {
		return
	}

	m.state = DailyState{
		DailyStartBalance: balance,
		LastResetDate:     today,
		UpdatedAt:         now,
	}
	m.logger.Info().Str("date", today).Float64("start_balance", balance).Msg("daily risk state reset")
	m.persist(ctx)
}

// RecordPnL adds a realized trade result to the running daily P&L and
// latches the loss limit when it is breached. The latch is one-way for the
// day: it blocks new buys but never protective exits.
func (m *Manager) RecordPnL(ctx context.Context, pnl, dailyLossLimitPercent float64) {
	m.state.DailyPnL += pnl
	m.state.UpdatedAt = time.Now()

	if !m.state.LimitReached && m.state.DailyStartBalance > 0 && dailyLossLimitPercent > 0 {
		lossPct := m.state.DailyPnL / m.state.DailyStartBalance * 100
		if lossPct <= -dailyLossLimitPercent {
			m.state.LimitReached = true
			m.logger.Warn().
				Float64("daily_pnl", m.state.DailyPnL).
				Float64("loss_percent", lossPct).
				Float64("limit_percent", dailyLossLimitPercent).
				Msg("daily loss limit reached, new entries blocked for the day")
		}
	}
	m.persist(ctx)
}

// LimitReached reports whether the daily loss latch is set
func (m *Manager) LimitReached() bool {
	return m.state.LimitReached
}

// State returns a copy of the current daily state
func (m *Manager) State() DailyState {
	return m.state
}

// TradeSize computes the dollar value and volume for a new entry.
// Target value is balance·MaxPositionPercent capped at MaxTradeUSD. When
// that volume is below the exchange minimum but the balance still covers
// it, the small-account path spends 95% of the balance instead, still
// capped, so small accounts do not starve forever.
func (m *Manager) TradeSize(balance, price, minVolume float64) (SizeResult, error) {
	if price <= 0 {
		return SizeResult{}, fmt.Errorf("invalid price %.8f", price)
	}

	tradeUSD := balance * m.profile.MaxPositionPercent / 100
	if tradeUSD > m.profile.MaxTradeUSD {
		tradeUSD = m.profile.MaxTradeUSD
	}
	volume := tradeUSD / price

	result := SizeResult{TradeUSD: tradeUSD, Volume: volume}
	if volume < minVolume {
		minCost := minVolume * price
		if balance*0.95 < minCost {
			return SizeResult{}, fmt.Errorf("balance %.2f cannot cover minimum volume %.8f at %.4f", balance, minVolume, price)
		}
		tradeUSD = balance * 0.95
		if tradeUSD > m.profile.MaxTradeUSD {
			tradeUSD = m.profile.MaxTradeUSD
		}
		result = SizeResult{TradeUSD: tradeUSD, Volume: tradeUSD / price, SmallAccount: true}
	}

	if result.TradeUSD < m.profile.MinTradeUSD {
		return SizeResult{}, fmt.Errorf("trade value %.2f below minimum %.2f", result.TradeUSD, m.profile.MinTradeUSD)
	}
	return result, nil
}

// CheckExposure validates a prospective buy against the per-pair and total
// exposure caps. Exposure is measured at cost basis (entry price), not
// mark-to-market.
func (m *Manager) CheckExposure(balance, pairExposure, totalExposure, tradeUSD, maxPairPercent, maxTotalPercent float64) GateResult {
	pairCap := balance * maxPairPercent / 100
	if pairExposure+tradeUSD > pairCap {
		return GateResult{
			BlockedBy: "pair",
			Reason: fmt.Sprintf("pair exposure %.2f + %.2f exceeds cap %.2f (%.0f%% of %.2f)",
				pairExposure, tradeUSD, pairCap, maxPairPercent, balance),
		}
	}

	totalCap := balance * maxTotalPercent / 100
	if totalExposure+tradeUSD > totalCap {
		return GateResult{
			BlockedBy: "total",
			Reason: fmt.Sprintf("total exposure %.2f + %.2f exceeds cap %.2f (%.0f%% of %.2f)",
				totalExposure, tradeUSD, totalCap, maxTotalPercent, balance),
		}
	}

	return GateResult{Allowed: true}
}

func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveDailyState(ctx, &m.state); err != nil {
		m.logger.Warn().Err(err).Msg("could not persist daily risk state")
	}
}
