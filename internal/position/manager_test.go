package position

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager() *Manager {
	return NewManager(zerolog.Nop())
}

func TestApplyBuyOpensPosition(t *testing.T) {
	m := newTestManager()
	now := time.Now()

	p := m.ApplyBuy("XBTUSD", 0.5, 100, now)
	if p.Amount != 0.5 || p.EntryPrice != 100 || p.HighestPrice != 100 {
		t.Errorf("unexpected opened position %+v", p)
	}
	if !p.OpenedAt.Equal(now) {
		t.Errorf("expected OpenedAt %v, got %v", now, p.OpenedAt)
	}
}

func TestApplyBuyAveragesEntry(t *testing.T) {
	m := newTestManager()

	m.ApplyBuy("XBTUSD", 1, 100, time.Now())
	p := m.ApplyBuy("XBTUSD", 1, 200, time.Now())

	if p.Amount != 2 {
		t.Errorf("expected amount 2, got %f", p.Amount)
	}
	if p.EntryPrice != 150 {
		t.Errorf("expected volume-weighted entry 150, got %f", p.EntryPrice)
	}
	if p.HighestPrice != 200 {
		t.Errorf("expected highest price 200, got %f", p.HighestPrice)
	}
}

func TestApplySellPartialAndFull(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 2, 100, time.Now())

	p, closed := m.ApplySell("XBTUSD", 0.5)
	if closed {
		t.Fatal("partial sell must not close the position")
	}
	if p.Amount != 1.5 {
		t.Errorf("expected remaining 1.5, got %f", p.Amount)
	}

	p, closed = m.ApplySell("XBTUSD", 1.5)
	if !closed {
		t.Fatal("selling the full amount must close the position")
	}
	if p.Amount != 0 {
		t.Errorf("closed position should report amount 0, got %f", p.Amount)
	}
	if _, ok := m.Get("XBTUSD"); ok {
		t.Error("closed position must be removed from the manager")
	}
}

func TestApplySellUnknownPair(t *testing.T) {
	m := newTestManager()
	if _, closed := m.ApplySell("ETHUSD", 1); closed {
		t.Error("selling with no position must be a no-op")
	}
}

func TestObservePriceRatchetsUpward(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())

	m.ObservePrice("XBTUSD", 120)
	m.ObservePrice("XBTUSD", 110)

	p, _ := m.Get("XBTUSD")
	if p.HighestPrice != 120 {
		t.Errorf("high-water mark must never decrease, got %f", p.HighestPrice)
	}
}

func TestCheckExitStopLossWinsOverTrailing(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())
	m.ObservePrice("XBTUSD", 120)

	rules := ExitRules{StopLossPercent: 3, TakeProfitPercent: 50, TrailingEnabled: true, TrailingStopPercent: 2}
	decision := m.CheckExit("XBTUSD", 96, rules)

	if decision == nil {
		t.Fatal("expected an exit decision at -4%")
	}
	if decision.Reason != ExitStopLoss {
		t.Errorf("stop-loss must take priority, got %s", decision.Reason)
	}
}

func TestCheckExitTakeProfit(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())

	rules := ExitRules{StopLossPercent: 3, TakeProfitPercent: 5}
	decision := m.CheckExit("XBTUSD", 106, rules)

	if decision == nil || decision.Reason != ExitTakeProfit {
		t.Fatalf("expected take-profit at +6%%, got %+v", decision)
	}
}

func TestCheckExitTrailingStop(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())
	m.ObservePrice("XBTUSD", 120)

	rules := ExitRules{StopLossPercent: 10, TakeProfitPercent: 50, TrailingEnabled: true, TrailingStopPercent: 2}
	decision := m.CheckExit("XBTUSD", 103, rules)

	if decision == nil || decision.Reason != ExitTrailingStop {
		t.Fatalf("expected trailing stop after a 14%% drop from the high, got %+v", decision)
	}
	if decision.ChangePercent <= 0 {
		t.Errorf("trailing exits only fire in profit, got %f", decision.ChangePercent)
	}
}

func TestTrailingNeedsHighAboveEntry(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())

	rules := ExitRules{StopLossPercent: 5, TakeProfitPercent: 50, TrailingEnabled: true, TrailingStopPercent: 1}
	if decision := m.CheckExit("XBTUSD", 99, rules); decision != nil {
		t.Errorf("trailing must not arm before the price exceeds entry, got %+v", decision)
	}
}

func TestTrailingNeverFiresAtALoss(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())
	m.ObservePrice("XBTUSD", 110)

	rules := ExitRules{StopLossPercent: 5, TakeProfitPercent: 50, TrailingEnabled: true, TrailingStopPercent: 2}
	if decision := m.CheckExit("XBTUSD", 99.9, rules); decision != nil {
		t.Errorf("a drop below entry belongs to the stop-loss, got %+v", decision)
	}
}

func TestTrailingDisabled(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 1, 100, time.Now())
	m.ObservePrice("XBTUSD", 120)

	rules := ExitRules{StopLossPercent: 10, TakeProfitPercent: 50, TrailingEnabled: false, TrailingStopPercent: 2}
	if decision := m.CheckExit("XBTUSD", 103, rules); decision != nil {
		t.Errorf("disabled trailing must not fire, got %+v", decision)
	}
}

func TestExposureAtCostBasis(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 2, 100, time.Now())
	m.ApplyBuy("ETHUSD", 10, 30, time.Now())

	// Mark price moves do not change cost-basis exposure
	m.ObservePrice("XBTUSD", 500)

	if got := m.PairExposure("XBTUSD"); got != 200 {
		t.Errorf("expected pair exposure 200, got %f", got)
	}
	if got := m.TotalExposure(); got != 500 {
		t.Errorf("expected total exposure 500, got %f", got)
	}
	if got := m.PairExposure("SOLUSD"); got != 0 {
		t.Errorf("expected zero exposure for an unheld pair, got %f", got)
	}
}

func TestLoadClampsHighWaterMark(t *testing.T) {
	m := newTestManager()
	m.Load([]Position{
		{Pair: "XBTUSD", Amount: 1, EntryPrice: 100, HighestPrice: 90, OpenedAt: time.Now()},
		{Pair: "ETHUSD", Amount: 0, EntryPrice: 50, HighestPrice: 50, OpenedAt: time.Now()},
	})

	p, ok := m.Get("XBTUSD")
	if !ok {
		t.Fatal("expected XBTUSD to be restored")
	}
	if p.HighestPrice != 100 {
		t.Errorf("restored high-water mark must be at least the entry, got %f", p.HighestPrice)
	}
	if _, ok := m.Get("ETHUSD"); ok {
		t.Error("zero-amount positions must not be restored")
	}
}

func TestRoundTripLeavesNoResidual(t *testing.T) {
	m := newTestManager()
	m.ApplyBuy("XBTUSD", 0.3, 100, time.Now())
	m.ApplyBuy("XBTUSD", 0.3, 100, time.Now())

	p, _ := m.Get("XBTUSD")
	if math.Abs(p.Amount-0.6) > 1e-12 {
		t.Fatalf("expected amount 0.6, got %.17f", p.Amount)
	}

	if _, closed := m.ApplySell("XBTUSD", p.Amount); !closed {
		t.Error("selling the exact held amount must fully close the position")
	}
	if m.TotalExposure() != 0 {
		t.Errorf("expected zero exposure after the round trip, got %f", m.TotalExposure())
	}
}
