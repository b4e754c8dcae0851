package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/notification"
	"kraken-trading-bot/internal/position"
	"kraken-trading-bot/internal/risk"
)

func testConfig() BotConfig {
	return BotConfig{
		Strategy:                "mean_reversion",
		RiskLevel:               "medium",
		ActivePairs:             []string{"XBTUSD"},
		MaxPairExposurePercent:  25,
		MaxTotalExposurePercent: 80,
		StopLossPercent:         3,
		TakeProfitPercent:       5,
		DailyLossLimitPercent:   5,
		IsActive:                true,
	}
}

func newTestEngine(exchange *fakeExchange, store *fakeStore) (*Engine, *risk.Manager) {
	riskMgr := risk.NewManager(risk.ProfileForLevel("medium"), nil, zerolog.Nop())
	return New(exchange, store, notification.NoopNotifier{}, riskMgr, zerolog.Nop()), riskMgr
}

// plungeScript holds a tight oscillation long enough to fill the history
// window, then a several-sigma move that triggers mean reversion.
func plungeScript(finalPrice float64) []float64 {
	script := make([]float64, 0, 30)
	for i := 0; i < 29; i++ {
		if i%2 == 0 {
			script = append(script, 100.5)
		} else {
			script = append(script, 99.5)
		}
	}
	return append(script, finalPrice)
}

func TestEngineBuysThroughFullPipeline(t *testing.T) {
	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = plungeScript(97)
	store := newFakeStore(testConfig())
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	if len(exchange.orders) != 1 {
		t.Fatalf("expected exactly 1 order, got %d", len(exchange.orders))
	}
	order := exchange.orders[0]
	if order.Side != kraken.SideBuy {
		t.Fatalf("expected a buy, got %s", order.Side)
	}
	// Medium risk commits 20% of the $1000 balance at the plunge price
	if math.Abs(order.Volume-200.0/97.0) > 1e-9 {
		t.Errorf("expected volume %f, got %f", 200.0/97.0, order.Volume)
	}

	if _, ok := store.positions["XBTUSD"]; !ok {
		t.Error("expected the opened position to be persisted")
	}
	if len(store.trades) != 1 || store.trades[0].Side != "buy" {
		t.Errorf("expected 1 recorded buy trade, got %+v", store.trades)
	}
}

func TestDailyLossLatchBlocksEntries(t *testing.T) {
	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = plungeScript(97)
	store := newFakeStore(testConfig())
	e, riskMgr := newTestEngine(exchange, store)

	ctx := context.Background()
	riskMgr.BeginCycle(ctx, time.Now(), 1000)
	riskMgr.RecordPnL(ctx, -60, 5)
	if !riskMgr.LimitReached() {
		t.Fatal("expected the latch to be set")
	}

	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if len(exchange.orders) != 0 {
		t.Errorf("latched risk state must block all entries, got %d orders", len(exchange.orders))
	}
}

func TestProtectiveExitRunsDespiteLatch(t *testing.T) {
	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = []float64{90}
	store := newFakeStore(testConfig())
	store.positions["XBTUSD"] = position.Position{
		Pair: "XBTUSD", Amount: 1, EntryPrice: 100, HighestPrice: 100, OpenedAt: time.Now(),
	}
	e, riskMgr := newTestEngine(exchange, store)

	ctx := context.Background()
	riskMgr.BeginCycle(ctx, time.Now(), 1000)
	riskMgr.RecordPnL(ctx, -60, 5)

	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.runCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if len(exchange.orders) != 1 {
		t.Fatalf("stop-loss must fire even when latched, got %d orders", len(exchange.orders))
	}
	if exchange.orders[0].Side != kraken.SideSell || exchange.orders[0].Volume != 1 {
		t.Errorf("expected a full-position sell, got %+v", exchange.orders[0])
	}
	if store.deletes != 1 {
		t.Errorf("expected the persisted position removed, got %d deletes", store.deletes)
	}
	if len(store.trades) != 1 || math.Abs(store.trades[0].PnL-(-10)) > 1e-9 {
		t.Errorf("expected a recorded trade with P&L -10, got %+v", store.trades)
	}
}

func TestSellSignalUnloadsHalfThePosition(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPercent = 20
	cfg.TakeProfitPercent = 50

	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = plungeScript(103)
	store := newFakeStore(cfg)
	store.positions["XBTUSD"] = position.Position{
		Pair: "XBTUSD", Amount: 2, EntryPrice: 95, HighestPrice: 95, OpenedAt: time.Now(),
	}
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if len(exchange.orders) != 1 {
		t.Fatalf("expected exactly 1 order, got %d", len(exchange.orders))
	}
	order := exchange.orders[0]
	if order.Side != kraken.SideSell || order.Volume != 1 {
		t.Errorf("expected half the 2-unit position sold, got %+v", order)
	}

	remaining := store.positions["XBTUSD"]
	if remaining.Amount != 1 {
		t.Errorf("expected 1 unit remaining, got %f", remaining.Amount)
	}
}

func TestPairSkipOnMarketDataError(t *testing.T) {
	cfg := testConfig()
	cfg.ActivePairs = []string{"XBTUSD", "ETHUSD"}

	exchange := newFakeExchange()
	exchange.tickerErr["XBTUSD"] = errors.New("ticker unavailable")
	exchange.prices["ETHUSD"] = []float64{100}
	store := newFakeStore(cfg)
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.runCycle(ctx); err != nil {
		t.Fatalf("one bad pair must not fail the cycle: %v", err)
	}

	if e.history.Len("XBTUSD") != 0 {
		t.Error("the failing pair must record nothing")
	}
	if e.history.Len("ETHUSD") != 1 {
		t.Error("the healthy pair must still be processed")
	}
}

func TestInactiveConfigSkipsTrading(t *testing.T) {
	cfg := testConfig()
	cfg.IsActive = false

	exchange := newFakeExchange()
	store := newFakeStore(cfg)
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.runCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if exchange.balanceCalls != 0 {
		t.Error("an inactive bot must not touch the exchange")
	}
}

func TestBusyGuardDropsOverlappingTick(t *testing.T) {
	exchange := newFakeExchange()
	store := newFakeStore(testConfig())
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	calls := store.configCalls

	e.busy.Store(true)
	e.tick(ctx)

	if store.configCalls != calls {
		t.Error("a tick during a running cycle must be dropped")
	}
}

func TestStrategyHotSwapChangesInterval(t *testing.T) {
	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = []float64{100}
	store := newFakeStore(testConfig())
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	if e.cycleInterval() != 30*time.Second {
		t.Fatalf("expected 30s for mean reversion, got %v", e.cycleInterval())
	}

	store.cfg.Strategy = "scalping"
	if err := e.runCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if e.strategy.Name() != "scalping" {
		t.Fatalf("expected the strategy swapped, got %s", e.strategy.Name())
	}
	if e.cycleInterval() != 10*time.Second {
		t.Errorf("expected 10s after swapping to scalping, got %v", e.cycleInterval())
	}

	// An unknown name keeps the previous strategy running
	store.cfg.Strategy = "martingale"
	if err := e.runCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if e.strategy.Name() != "scalping" {
		t.Errorf("a bad strategy name must not clear the active strategy, got %s", e.strategy.Name())
	}
}

func TestLaterPairsSizeAgainstDebitedBalance(t *testing.T) {
	cfg := testConfig()
	cfg.ActivePairs = []string{"XBTUSD", "ETHUSD"}

	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = plungeScript(97)
	exchange.prices["ETHUSD"] = plungeScript(97)
	store := newFakeStore(cfg)
	e, _ := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	if len(exchange.orders) != 2 {
		t.Fatalf("expected both pairs bought, got %d orders", len(exchange.orders))
	}
	// First entry commits 20% of $1000; the second sizes against the $800
	// left after the first fill, not the cycle's opening snapshot.
	if math.Abs(exchange.orders[0].Volume-200.0/97.0) > 1e-9 {
		t.Errorf("expected first volume %f, got %f", 200.0/97.0, exchange.orders[0].Volume)
	}
	if math.Abs(exchange.orders[1].Volume-160.0/97.0) > 1e-6 {
		t.Errorf("expected second volume %f, got %f", 160.0/97.0, exchange.orders[1].Volume)
	}
	if got := e.executor.Balance(); math.Abs(got-640) > 1e-6 {
		t.Errorf("expected %.0f cash left after both fills, got %f", 640.0, got)
	}
}

func TestExposureBlockAlertsUser(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPairExposurePercent = 10 // $100 cap against a $200 sizing

	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = plungeScript(97)
	store := newFakeStore(cfg)
	notifier := &fakeNotifier{}
	riskMgr := risk.NewManager(risk.ProfileForLevel("medium"), nil, zerolog.Nop())
	e := New(exchange, store, notifier, riskMgr, zerolog.Nop())

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if len(exchange.orders) != 0 {
		t.Fatalf("expected the capped entry blocked, got %d orders", len(exchange.orders))
	}
	notifier.waitForAlerts(t, 1)
	if alert := notifier.firstAlert(); !strings.Contains(alert, "XBTUSD") || !strings.Contains(alert, "exposure") {
		t.Errorf("expected the alert to name the pair and the cap, got %q", alert)
	}
}

// roundTripScript triggers a mean-reversion buy at 97, grinds the window mean
// down near 90, then prints 97 again so the same price reads as overbought.
func roundTripScript() []float64 {
	script := plungeScript(97)
	for i := 0; i < 55; i++ {
		if i%2 == 0 {
			script = append(script, 90.3)
		} else {
			script = append(script, 89.7)
		}
	}
	return append(script, 97)
}

func TestBuyThenFullSellAtSamePriceIsFlat(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPercent = 50 // keep protective exits out of the way
	cfg.TakeProfitPercent = 90

	exchange := newFakeExchange()
	exchange.prices["XBTUSD"] = roundTripScript()
	// A minimum this high makes the half-sell remainder sub-minimum, so the
	// signal sell closes the position in full.
	exchange.minVol = 1.5
	store := newFakeStore(cfg)
	e, riskMgr := newTestEngine(exchange, store)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(exchange.prices["XBTUSD"]); i++ {
		if err := e.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	if len(exchange.orders) != 2 {
		t.Fatalf("expected one buy and one sell, got %d orders", len(exchange.orders))
	}
	buy, sell := exchange.orders[0], exchange.orders[1]
	if buy.Side != kraken.SideBuy || sell.Side != kraken.SideSell {
		t.Fatalf("expected buy then sell, got %s then %s", buy.Side, sell.Side)
	}
	if math.Abs(sell.Volume-buy.Volume) > 1e-12 {
		t.Errorf("expected the full bought volume sold back, got %f of %f", sell.Volume, buy.Volume)
	}

	if _, ok := e.positions.Get("XBTUSD"); ok {
		t.Error("expected no position after the round trip")
	}
	if len(store.positions) != 0 || store.deletes != 1 {
		t.Errorf("expected the persisted position removed, got %+v with %d deletes", store.positions, store.deletes)
	}
	if pnl := riskMgr.State().DailyPnL; pnl != 0 {
		t.Errorf("a round trip at the same price must leave daily P&L flat, got %f", pnl)
	}
	if len(store.trades) != 2 || store.trades[1].PnL != 0 {
		t.Errorf("expected two trades with a flat closing P&L, got %+v", store.trades)
	}
}
