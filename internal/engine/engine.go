// Package engine drives the trading loop: one cycle fetches market data,
// evaluates the active strategy per pair, filters against higher timeframes,
// gates entries through risk and hands accepted decisions to the executor.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kraken-trading-bot/internal/analysis"
	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/market"
	"kraken-trading-bot/internal/notification"
	"kraken-trading-bot/internal/position"
	"kraken-trading-bot/internal/risk"
	"kraken-trading-bot/internal/strategy"
)

// sellFraction caps how much of a position a signal-driven sell may unload
// in one cycle. Protective exits always close the full position.
const sellFraction = 0.5

// Engine owns the cycle scheduler and the per-cycle decision pipeline.
// Cycles are strictly sequential; the busy guard drops a tick rather than
// ever letting two cycles overlap.
type Engine struct {
	exchange  kraken.Exchange
	store     Store
	executor  *Executor
	history   *market.History
	positions *position.Manager
	risk      *risk.Manager
	timeframe *analysis.TimeframeCache
	notifier  notification.Notifier
	logger    zerolog.Logger

	strategy strategy.Strategy
	cfg      *BotConfig
	busy     atomic.Bool
}

// New assembles an engine. The strategy is resolved lazily from bot config
// on the first cycle.
func New(exchange kraken.Exchange, store Store, notifier notification.Notifier, riskMgr *risk.Manager, logger zerolog.Logger) *Engine {
	positions := position.NewManager(logger)
	return &Engine{
		exchange:  exchange,
		store:     store,
		executor:  NewExecutor(exchange, positions, store, notifier, logger),
		history:   market.NewHistory(market.DefaultCapacity),
		positions: positions,
		risk:      riskMgr,
		timeframe: analysis.NewTimeframeCache(exchange, logger),
		notifier:  notifier,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Positions exposes the position manager, mainly for startup restore and
// operator inspection.
func (e *Engine) Positions() *position.Manager {
	return e.positions
}

// Run executes trading cycles until the context is canceled. The cycle in
// flight finishes before Run returns, so shutdown never interrupts an order.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.restore(ctx); err != nil {
		return err
	}

	interval := e.cycleInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", interval).Msg("trading loop started")
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("trading loop stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx)
			if next := e.cycleInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				e.logger.Info().Dur("interval", interval).Msg("cycle interval changed")
			}
		}
	}
}

// tick runs one cycle unless another is still in flight
func (e *Engine) tick(ctx context.Context) {
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Warn().Msg("previous cycle still running, skipping tick")
		return
	}
	defer e.busy.Store(false)

	if err := e.runCycle(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error().Err(err).Msg("cycle failed")
	}
}

func (e *Engine) restore(ctx context.Context) error {
	positions, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("restoring open positions: %w", err)
	}
	e.positions.Load(positions)
	e.risk.Restore(ctx)

	cfg, err := e.store.GetBotConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading bot config: %w", err)
	}
	e.applyConfig(cfg)
	return nil
}

// runCycle is one full pass: reload config, snapshot the balance into the
// executor's cash tracker, roll the daily risk state, then process each
// active pair in order.
func (e *Engine) runCycle(ctx context.Context) error {
	if cfg, err := e.store.GetBotConfig(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("config reload failed, keeping previous config")
	} else {
		e.applyConfig(cfg)
	}
	if e.cfg == nil || e.strategy == nil {
		return fmt.Errorf("no usable bot config")
	}
	if !e.cfg.IsActive {
		e.logger.Debug().Msg("bot inactive, cycle skipped")
		return nil
	}

	balances, err := e.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}
	balance := usdBalance(balances)
	e.risk.BeginCycle(ctx, time.Now(), balance)
	e.executor.SetBalance(balance)

	for _, pair := range e.cfg.ActivePairs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.processPair(ctx, pair); err != nil {
			e.logger.Warn().Err(err).Str("pair", pair).Msg("pair skipped")
		}
	}
	return nil
}

// applyConfig swaps in a fresh bot config, resolving strategy and risk
// profile changes. A config carrying an unknown strategy name keeps the
// previous strategy running.
func (e *Engine) applyConfig(cfg *BotConfig) {
	if cfg == nil {
		return
	}
	e.cfg = cfg
	e.risk.SetProfile(risk.ProfileForLevel(cfg.RiskLevel))

	if e.strategy == nil || e.strategy.Name() != cfg.Strategy {
		s, err := strategy.ForName(cfg.Strategy)
		if err != nil {
			e.logger.Error().Err(err).Msg("strategy swap rejected")
			return
		}
		e.strategy = s
		e.logger.Info().Str("strategy", s.Name()).Msg("active strategy set")
	}
}

// processPair runs the decision pipeline for one pair. Protective exits are
// evaluated before anything else and run regardless of the daily loss latch.
func (e *Engine) processPair(ctx context.Context, pair string) error {
	ticker, err := e.exchange.GetTicker(ctx, pair)
	if err != nil {
		return fmt.Errorf("fetching ticker: %w", err)
	}

	e.history.Record(pair, market.PriceSample{
		Price:     ticker.Last,
		High:      ticker.High24h,
		Low:       ticker.Low24h,
		Volume:    ticker.Volume24h,
		Timestamp: time.Now(),
	})
	e.positions.ObservePrice(pair, ticker.Last)

	if closed, err := e.checkProtectiveExit(ctx, pair, ticker.Last); err != nil {
		return err
	} else if closed {
		return nil
	}

	sig := e.strategy.Evaluate(pair, e.history.Samples(pair))
	sig = e.filterSignal(ctx, sig)

	switch sig.Action {
	case strategy.ActionBuy:
		return e.tryBuy(ctx, pair, ticker.Last, sig)
	case strategy.ActionSell:
		return e.trySell(ctx, pair, ticker.Last, sig)
	default:
		e.logger.Debug().Str("pair", pair).Str("reason", sig.Reason).Msg("hold")
		return nil
	}
}

// checkProtectiveExit closes the full position when a stop-loss, take-profit
// or trailing-stop threshold is hit. Returns true when an exit fired, which
// ends the pair's cycle; entry and exit never happen in the same pass.
func (e *Engine) checkProtectiveExit(ctx context.Context, pair string, price float64) (bool, error) {
	pos, ok := e.positions.Get(pair)
	if !ok {
		return false, nil
	}

	decision := e.positions.CheckExit(pair, price, e.exitRules())
	if decision == nil {
		return false, nil
	}

	reason := fmt.Sprintf("%s at %+.2f%%", decision.Reason, decision.ChangePercent)
	trade, err := e.executor.ExecuteSell(ctx, pair, pos.Amount, price, e.strategy.Name(), reason)
	if err != nil {
		return false, fmt.Errorf("protective exit: %w", err)
	}
	e.risk.RecordPnL(ctx, trade.PnL, e.cfg.DailyLossLimitPercent)
	return true, nil
}

// tryBuy sizes and gates an entry against the cash left in the cycle, so a
// fill on an earlier pair shrinks what later pairs may commit.
func (e *Engine) tryBuy(ctx context.Context, pair string, price float64, sig strategy.Signal) error {
	if e.risk.LimitReached() {
		e.logger.Info().Str("pair", pair).Msg("buy blocked, daily loss limit reached")
		return nil
	}

	balance := e.executor.Balance()
	size, err := e.risk.TradeSize(balance, price, e.exchange.MinOrderVolume(pair))
	if err != nil {
		e.logger.Debug().Err(err).Str("pair", pair).Msg("buy skipped, sizing failed")
		return nil
	}

	gate := e.risk.CheckExposure(balance, e.positions.PairExposure(pair), e.positions.TotalExposure(),
		size.TradeUSD, e.cfg.MaxPairExposurePercent, e.cfg.MaxTotalExposurePercent)
	if !gate.Allowed {
		e.logger.Info().Str("pair", pair).Str("blocked_by", gate.BlockedBy).Str("reason", gate.Reason).Msg("buy blocked by exposure cap")
		notification.Alert(e.notifier, e.logger, "Entry blocked",
			fmt.Sprintf("%s buy held back by the %s exposure cap: %s", pair, gate.BlockedBy, gate.Reason))
		return nil
	}

	if size.SmallAccount {
		e.logger.Info().Str("pair", pair).Float64("trade_usd", size.TradeUSD).Msg("small-account sizing in effect")
	}
	_, err = e.executor.ExecuteBuy(ctx, pair, size.Volume, price, e.strategy.Name(), sig.Reason)
	return err
}

// trySell unloads at most half the position on a signal sell; the remainder
// stays open for the protective exits or a later signal. A remainder that
// would fall under the exchange minimum is sold in full instead.
func (e *Engine) trySell(ctx context.Context, pair string, price float64, sig strategy.Signal) error {
	pos, ok := e.positions.Get(pair)
	if !ok {
		e.logger.Debug().Str("pair", pair).Msg("sell signal with no open position")
		return nil
	}

	volume := pos.Amount * sellFraction
	if pos.Amount-volume < e.exchange.MinOrderVolume(pair) {
		volume = pos.Amount
	}

	trade, err := e.executor.ExecuteSell(ctx, pair, volume, price, e.strategy.Name(), sig.Reason)
	if err != nil {
		return err
	}
	e.risk.RecordPnL(ctx, trade.PnL, e.cfg.DailyLossLimitPercent)
	return nil
}

// filterSignal applies the multi-timeframe filter. When no snapshot can be
// fetched at all the raw signal passes through; trading on primary data
// beats stalling the whole pair.
func (e *Engine) filterSignal(ctx context.Context, sig strategy.Signal) strategy.Signal {
	if sig.Action == strategy.ActionHold {
		return sig
	}
	snapshot, err := e.timeframe.Get(ctx, sig.Pair)
	if snapshot == nil {
		if err != nil {
			e.logger.Warn().Err(err).Str("pair", sig.Pair).Msg("timeframe snapshot unavailable, signal unfiltered")
		}
		return sig
	}
	return analysis.FilterSignal(sig, snapshot).Signal
}

// exitRules builds the protective thresholds, preferring explicit bot config
// values over the risk profile defaults.
func (e *Engine) exitRules() position.ExitRules {
	profile := e.risk.Profile()
	rules := position.ExitRules{
		StopLossPercent:     profile.StopLossPercent,
		TakeProfitPercent:   profile.TakeProfitPercent,
		TrailingEnabled:     e.cfg.TrailingStopEnabled,
		TrailingStopPercent: e.cfg.TrailingStopPercent,
	}
	if e.cfg.StopLossPercent > 0 {
		rules.StopLossPercent = e.cfg.StopLossPercent
	}
	if e.cfg.TakeProfitPercent > 0 {
		rules.TakeProfitPercent = e.cfg.TakeProfitPercent
	}
	return rules
}

func (e *Engine) cycleInterval() time.Duration {
	if e.strategy == nil {
		return 30 * time.Second
	}
	return e.strategy.CycleInterval()
}

// usdBalance extracts the quote-currency balance. Kraken reports USD under
// the legacy ZUSD code.
func usdBalance(balances map[string]float64) float64 {
	if v, ok := balances["ZUSD"]; ok {
		return v
	}
	return balances["USD"]
}
