package analysis

import (
	"testing"
	"time"

	"kraken-trading-bot/internal/strategy"
)

func TestFilterSuppressesBuyAgainstBearishHigherTimeframes(t *testing.T) {
	snapshot := &Snapshot{
		Pair:       "XBTUSD",
		ShortTerm:  flatCandles(25, 100),
		MediumTerm: fallingCandles(25, 100, 0.5),
		LongTerm:   fallingCandles(25, 100, 0.5),
		LastUpdate: time.Now(),
	}

	sig := strategy.Signal{Action: strategy.ActionBuy, Pair: "XBTUSD", Confidence: 0.8, Reason: "test buy"}
	result := FilterSignal(sig, snapshot)

	if result.Signal.Action != strategy.ActionHold {
		t.Fatalf("expected buy suppressed to hold, got %s", result.Signal.Action)
	}
	if result.Signal.Confidence != suppressedConfidence {
		t.Errorf("expected suppressed confidence %f, got %f", suppressedConfidence, result.Signal.Confidence)
	}
	if result.Medium != TrendBearish || result.Long != TrendBearish {
		t.Errorf("expected bearish medium and long trends, got %s/%s", result.Medium, result.Long)
	}
}

func TestFilterBoostsAlignedBuy(t *testing.T) {
	snapshot := &Snapshot{
		Pair:       "XBTUSD",
		ShortTerm:  risingCandles(25, 100, 0.5),
		MediumTerm: risingCandles(25, 100, 0.5),
		LongTerm:   risingCandles(25, 100, 0.5),
		LastUpdate: time.Now(),
	}

	sig := strategy.Signal{Action: strategy.ActionBuy, Pair: "XBTUSD", Confidence: 0.6, Reason: "test buy"}
	result := FilterSignal(sig, snapshot)

	if result.Signal.Action != strategy.ActionBuy {
		t.Fatalf("expected buy to pass the filter, got %s", result.Signal.Action)
	}
	if result.Signal.Confidence != 0.75 {
		t.Errorf("expected boosted confidence 0.75, got %f", result.Signal.Confidence)
	}
}

func TestFilterBoostNeverExceedsCap(t *testing.T) {
	snapshot := &Snapshot{
		ShortTerm:  risingCandles(25, 100, 0.5),
		MediumTerm: risingCandles(25, 100, 0.5),
		LongTerm:   risingCandles(25, 100, 0.5),
	}

	sig := strategy.Signal{Action: strategy.ActionBuy, Pair: "XBTUSD", Confidence: 0.9}
	result := FilterSignal(sig, snapshot)

	if result.Signal.Confidence != strategy.MaxConfidence {
		t.Errorf("expected confidence capped at %f, got %f", strategy.MaxConfidence, result.Signal.Confidence)
	}
}

func TestFilterSuppressesSellAgainstBullishHigherTimeframes(t *testing.T) {
	snapshot := &Snapshot{
		ShortTerm:  flatCandles(25, 100),
		MediumTerm: risingCandles(25, 100, 0.5),
		LongTerm:   risingCandles(25, 100, 0.5),
	}

	sig := strategy.Signal{Action: strategy.ActionSell, Pair: "XBTUSD", Confidence: 0.8}
	result := FilterSignal(sig, snapshot)

	if result.Signal.Action != strategy.ActionHold {
		t.Fatalf("expected sell suppressed to hold, got %s", result.Signal.Action)
	}
}

func TestFilterPassesHoldUntouched(t *testing.T) {
	snapshot := &Snapshot{
		ShortTerm:  fallingCandles(25, 100, 0.5),
		MediumTerm: fallingCandles(25, 100, 0.5),
		LongTerm:   fallingCandles(25, 100, 0.5),
	}

	sig := strategy.Signal{Action: strategy.ActionHold, Pair: "XBTUSD", Confidence: 0.2, Reason: "no edge"}
	result := FilterSignal(sig, snapshot)

	if result.Signal != sig {
		t.Errorf("hold signal should pass through unchanged, got %+v", result.Signal)
	}
}

func TestFilterNeutralTimeframesLeaveSignalAlone(t *testing.T) {
	snapshot := &Snapshot{
		ShortTerm:  flatCandles(25, 100),
		MediumTerm: flatCandles(25, 100),
		LongTerm:   flatCandles(25, 100),
	}

	sig := strategy.Signal{Action: strategy.ActionBuy, Pair: "XBTUSD", Confidence: 0.6, Reason: "test"}
	result := FilterSignal(sig, snapshot)

	if result.Signal.Action != strategy.ActionBuy {
		t.Fatalf("expected buy to pass with neutral timeframes, got %s", result.Signal.Action)
	}
	if result.Signal.Confidence != 0.6 {
		t.Errorf("expected unchanged confidence 0.6, got %f", result.Signal.Confidence)
	}
}
