// Package strategy turns per-pair price history into trade signals.
package strategy

import (
	"fmt"
	"time"

	"kraken-trading-bot/internal/market"
)

// Action is the direction of a trade signal
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// MaxConfidence caps every strategy's signal confidence
const MaxConfidence = 0.95

// Signal represents a trading signal produced for a single cycle.
// Signals are ephemeral and never persisted.
type Signal struct {
	Action     Action
	Pair       string
	Confidence float64
	Reason     string
}

// Hold returns a hold signal with the given reason
func Hold(pair, reason string) Signal {
	return Signal{Action: ActionHold, Pair: pair, Confidence: 0, Reason: reason}
}

// Strategy evaluates price history for one pair and emits a signal
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// CycleInterval returns how often the engine should run a cycle
	// while this strategy is active
	CycleInterval() time.Duration

	// Evaluate produces a signal from the pair's recent samples
	Evaluate(pair string, samples []market.PriceSample) Signal
}

// ForName returns the strategy for a configured name. The set is closed;
// unknown names are an error so a config typo cannot silently fall back.
func ForName(name string) (Strategy, error) {
	switch name {
	case "momentum":
		return NewMomentumStrategy(), nil
	case "mean_reversion", "mean-reversion":
		return NewMeanReversionStrategy(), nil
	case "scalping":
		return NewScalpingStrategy(), nil
	case "grid":
		return NewGridStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// voteCount tallies weighted buy and sell votes from indicators
type voteCount struct {
	buy  float64
	sell float64
}

// margin returns buy votes minus sell votes
func (v voteCount) margin() float64 {
	return v.buy - v.sell
}

// capConfidence clamps a confidence value into [0, MaxConfidence]
func capConfidence(c float64) float64 {
	if c > MaxConfidence {
		return MaxConfidence
	}
	if c < 0 {
		return 0
	}
	return c
}
