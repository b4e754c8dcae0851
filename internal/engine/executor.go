package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/notification"
	"kraken-trading-bot/internal/position"
)

// OrderExecutionError reports an order the exchange did not accept.
// No local state is mutated when this is returned.
type OrderExecutionError struct {
	Pair        string
	Side        kraken.OrderSide
	Description string
}

func (e *OrderExecutionError) Error() string {
	return fmt.Sprintf("order rejected for %s %s: %s", e.Side, e.Pair, e.Description)
}

// Executor is the single place orders are placed. It owns the invariant that
// position state, trade records and notifications only ever follow a
// confirmed fill; a rejected order leaves everything untouched. It also keeps
// the running cash balance: seeded from the exchange snapshot at cycle start,
// debited on buys and credited on sells so later pairs in the same cycle size
// against cash actually left.
type Executor struct {
	exchange   kraken.Exchange
	positions  *position.Manager
	store      Store
	notifier   notification.Notifier
	logger     zerolog.Logger
	balanceUSD float64
}

// NewExecutor creates an order executor
func NewExecutor(exchange kraken.Exchange, positions *position.Manager, store Store, notifier notification.Notifier, logger zerolog.Logger) *Executor {
	return &Executor{
		exchange:  exchange,
		positions: positions,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// SetBalance seeds the cash balance from the exchange snapshot. Called once
// per cycle, before any pair is processed.
func (e *Executor) SetBalance(usd float64) {
	e.balanceUSD = usd
}

// Balance returns the cash balance net of the fills since the last snapshot
func (e *Executor) Balance() float64 {
	return e.balanceUSD
}

// ExecuteBuy places a market buy and, on a confirmed fill, opens or averages
// into the pair's position, debits the cash balance, persists the position
// and records the trade.
func (e *Executor) ExecuteBuy(ctx context.Context, pair string, volume, price float64, strategyName, reason string) (*Trade, error) {
	resp, err := e.placeOrder(ctx, pair, kraken.SideBuy, volume)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	pos := e.positions.ApplyBuy(pair, volume, price, now)
	e.persistPosition(ctx, pos)

	trade := &Trade{
		ID:         uuid.New().String(),
		Pair:       pair,
		Side:       string(kraken.SideBuy),
		Volume:     volume,
		Price:      price,
		ValueUSD:   volume * price,
		OrderID:    resp.OrderID,
		Strategy:   strategyName,
		Reason:     reason,
		ExecutedAt: now,
	}
	e.balanceUSD -= trade.ValueUSD
	e.recordTrade(ctx, trade)

	e.logger.Info().
		Str("pair", pair).
		Str("order_id", resp.OrderID).
		Float64("volume", volume).
		Float64("price", price).
		Str("reason", reason).
		Msg("buy executed")
	notification.Send(e.notifier, e.logger, fmt.Sprintf("🟢 BUY %s\nVolume: %.8f @ %.4f ($%.2f)\n%s", pair, volume, price, trade.ValueUSD, reason))

	return trade, nil
}

// ExecuteSell places a market sell against an open position and, on a
// confirmed fill, reduces or closes it and credits the proceeds back to the
// cash balance. The returned trade carries the realized P&L against the
// position's average entry.
func (e *Executor) ExecuteSell(ctx context.Context, pair string, volume, price float64, strategyName, reason string) (*Trade, error) {
	pos, ok := e.positions.Get(pair)
	if !ok {
		return nil, fmt.Errorf("no open position for %s", pair)
	}
	if volume > pos.Amount {
		volume = pos.Amount
	}

	resp, err := e.placeOrder(ctx, pair, kraken.SideSell, volume)
	if err != nil {
		return nil, err
	}

	pnl := (price - pos.EntryPrice) * volume
	updated, closed := e.positions.ApplySell(pair, volume)
	if closed {
		e.deletePosition(ctx, pair)
	} else {
		e.persistPosition(ctx, updated)
	}

	trade := &Trade{
		ID:         uuid.New().String(),
		Pair:       pair,
		Side:       string(kraken.SideSell),
		Volume:     volume,
		Price:      price,
		ValueUSD:   volume * price,
		OrderID:    resp.OrderID,
		Strategy:   strategyName,
		Reason:     reason,
		PnL:        pnl,
		ExecutedAt: time.Now(),
	}
	e.balanceUSD += trade.ValueUSD
	e.recordTrade(ctx, trade)

	e.logger.Info().
		Str("pair", pair).
		Str("order_id", resp.OrderID).
		Float64("volume", volume).
		Float64("price", price).
		Float64("pnl", pnl).
		Bool("closed", closed).
		Str("reason", reason).
		Msg("sell executed")
	notification.Send(e.notifier, e.logger, fmt.Sprintf("🔴 SELL %s\nVolume: %.8f @ %.4f ($%.2f)\nP&L: $%.2f\n%s", pair, volume, price, trade.ValueUSD, pnl, reason))

	return trade, nil
}

func (e *Executor) placeOrder(ctx context.Context, pair string, side kraken.OrderSide, volume float64) (*kraken.OrderResponse, error) {
	req := &kraken.OrderRequest{
		Pair:          pair,
		Side:          side,
		Type:          kraken.TypeMarket,
		Volume:        volume,
		ClientOrderID: uuid.New().String(),
	}

	resp, err := e.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("placing %s order for %s: %w", side, pair, err)
	}
	if resp == nil || resp.OrderID == "" {
		desc := "empty order id"
		if resp != nil && resp.Description != "" {
			desc = resp.Description
		}
		execErr := &OrderExecutionError{Pair: pair, Side: side, Description: desc}
		e.logger.Error().
			Str("pair", pair).
			Str("side", string(side)).
			Str("description", desc).
			Msg("order rejected by exchange")
		notification.Alert(e.notifier, e.logger, "Order rejected", execErr.Error())
		return nil, execErr
	}
	return resp, nil
}

// persistPosition writes the position with a bounded retry. The exchange fill
// already happened, so a persistence failure is logged and the in-memory
// state stays authoritative until the next successful write.
func (e *Executor) persistPosition(ctx context.Context, pos position.Position) {
	op := func() error { return e.store.UpsertOpenPosition(ctx, &pos) }
	if err := backoff.Retry(op, storeBackoff(ctx)); err != nil {
		e.logger.Error().Err(err).Str("pair", pos.Pair).Msg("could not persist position")
	}
}

func (e *Executor) deletePosition(ctx context.Context, pair string) {
	op := func() error { return e.store.DeleteOpenPosition(ctx, pair) }
	if err := backoff.Retry(op, storeBackoff(ctx)); err != nil {
		e.logger.Error().Err(err).Str("pair", pair).Msg("could not delete persisted position")
	}
}

func (e *Executor) recordTrade(ctx context.Context, t *Trade) {
	op := func() error { return e.store.RecordTrade(ctx, t) }
	if err := backoff.Retry(op, storeBackoff(ctx)); err != nil {
		e.logger.Error().Err(err).Str("trade_id", t.ID).Msg("could not record trade")
	}
}

func storeBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}
