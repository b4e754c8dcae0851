// Package position is the authoritative in-memory record of open positions
// and the protective-exit state machine evaluated on every cycle.
package position

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Position is an open holding for a single pair. Amount is never negative;
// a position whose amount reaches zero is removed from the manager.
// HighestPrice only ever ratchets upward while the position is open and
// feeds trailing-stop math exclusively.
type Position struct {
	Pair         string    `json:"pair"`
	Amount       float64   `json:"amount"`
	EntryPrice   float64   `json:"entry_price"`
	HighestPrice float64   `json:"highest_price"`
	OpenedAt     time.Time `json:"opened_at"`
}

// ExitReason identifies which protective rule closed a position
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
)

// ExitDecision is the result of the per-cycle protective-exit check
type ExitDecision struct {
	Reason        ExitReason
	ChangePercent float64 // price change vs entry at decision time
	DropFromHigh  float64 // percent drop from the high-water mark
}

// ExitRules are the thresholds the state machine applies, in percent
type ExitRules struct {
	StopLossPercent     float64
	TakeProfitPercent   float64
	TrailingEnabled     bool
	TrailingStopPercent float64
}

// Manager owns the per-pair open-positions map. Only the cycle driver
// mutates it; reads return copies.
type Manager struct {
	positions map[string]*Position
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewManager creates an empty position manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*Position),
		logger:    logger.With().Str("component", "positions").Logger(),
	}
}

// Load replaces the in-memory map with positions reloaded from storage
func (m *Manager) Load(positions []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions = make(map[string]*Position, len(positions))
	for i := range positions {
		p := positions[i]
		if p.Amount <= 0 {
			continue
		}
		if p.HighestPrice < p.EntryPrice {
			p.HighestPrice = p.EntryPrice
		}
		m.positions[p.Pair] = &p
	}
	m.logger.Info().Int("count", len(m.positions)).Msg("open positions restored")
}

// Get returns a copy of the open position for a pair, if any
func (m *Manager) Get(pair string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[pair]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// All returns copies of every open position
func (m *Manager) All() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// ApplyBuy records a buy fill. A first buy opens the position; a buy into
// an existing position averages in, with the entry price recomputed as the
// volume-weighted average of old and new.
func (m *Manager) ApplyBuy(pair string, amount, price float64, now time.Time) Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[pair]
	if !ok {
		p = &Position{
			Pair:         pair,
			Amount:       amount,
			EntryPrice:   price,
			HighestPrice: price,
			OpenedAt:     now,
		}
		m.positions[pair] = p
		m.logger.Info().Str("pair", pair).Float64("amount", amount).Float64("price", price).Msg("position opened")
		return *p
	}

	totalCost := p.Amount*p.EntryPrice + amount*price
	p.Amount += amount
	p.EntryPrice = totalCost / p.Amount
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	m.logger.Info().Str("pair", pair).
		Float64("amount", p.Amount).
		Float64("avg_entry", p.EntryPrice).
		Msg("position averaged in")
	return *p
}

// ApplySell reduces a position by the sold amount and returns the updated
// copy plus whether the position was fully closed and removed.
func (m *Manager) ApplySell(pair string, amount float64) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[pair]
	if !ok {
		return Position{}, false
	}

	p.Amount -= amount
	if p.Amount <= 1e-12 {
		closed := *p
		closed.Amount = 0
		delete(m.positions, pair)
		m.logger.Info().Str("pair", pair).Msg("position closed")
		return closed, true
	}

	m.logger.Info().Str("pair", pair).Float64("remaining", p.Amount).Msg("position reduced")
	return *p, false
}

// ObservePrice updates the high-water mark from the latest tick.
// Called every cycle while the position is open.
func (m *Manager) ObservePrice(pair string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.positions[pair]; ok && price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// CheckExit evaluates the protective exits for a pair at the current price.
// Order matters: stop-loss, then take-profit, then trailing-stop; exactly
// one reason fires per cycle. Trailing only arms once the high-water mark
// has exceeded the entry price, and only fires while P&L is still positive.
func (m *Manager) CheckExit(pair string, price float64, rules ExitRules) *ExitDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[pair]
	if !ok || p.EntryPrice <= 0 {
		return nil
	}

	changePct := (price - p.EntryPrice) / p.EntryPrice * 100

	if changePct <= -rules.StopLossPercent {
		return &ExitDecision{Reason: ExitStopLoss, ChangePercent: changePct}
	}
	if changePct >= rules.TakeProfitPercent {
		return &ExitDecision{Reason: ExitTakeProfit, ChangePercent: changePct}
	}
	if rules.TrailingEnabled && p.HighestPrice > p.EntryPrice {
		dropFromHigh := (p.HighestPrice - price) / p.HighestPrice * 100
		if dropFromHigh >= rules.TrailingStopPercent && changePct > 0 {
			return &ExitDecision{Reason: ExitTrailingStop, ChangePercent: changePct, DropFromHigh: dropFromHigh}
		}
	}

	return nil
}

// PairExposure returns the cost-basis exposure for one pair.
// Entry price, not mark price: cost-basis risk control, which understates
// exposure during adverse moves.
func (m *Manager) PairExposure(pair string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.positions[pair]; ok {
		return p.Amount * p.EntryPrice
	}
	return 0
}

// TotalExposure returns the cost-basis exposure across all pairs
func (m *Manager) TotalExposure() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0.0
	for _, p := range m.positions {
		total += p.Amount * p.EntryPrice
	}
	return total
}
