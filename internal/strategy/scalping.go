package strategy

import (
	"fmt"
	"math"
	"time"

	"kraken-trading-bot/internal/market"
)

// ScalpingStrategy hunts short dips and pops around a short-window average.
// The entry threshold adapts to ATR so quiet markets need a smaller move
// than volatile ones, and the strategy stands down entirely when ATR% is
// too low to cover trading costs.
type ScalpingStrategy struct{}

// NewScalpingStrategy creates a scalping strategy
func NewScalpingStrategy() *ScalpingStrategy {
	return &ScalpingStrategy{}
}

func (s *ScalpingStrategy) Name() string {
	return "scalping"
}

func (s *ScalpingStrategy) CycleInterval() time.Duration {
	return 10 * time.Second
}

const (
	scalpMinSamples    = 15
	scalpShortWindow   = 10
	scalpMinVolatility = 0.15 // stddev/mean floor, percent
	scalpMinATRPercent = 0.1
	scalpBaseThreshold = 0.2 // percent move from the short-window average
)

func (s *ScalpingStrategy) Evaluate(pair string, samples []market.PriceSample) Signal {
	if len(samples) < scalpMinSamples {
		return Hold(pair, "insufficient price history")
	}

	prices := market.Prices(samples)
	price := prices[len(prices)-1]

	shortAvg := CalculateSMA(prices, scalpShortWindow)
	if shortAvg == 0 {
		return Hold(pair, "scalping: no price data")
	}

	mean := CalculateSMA(prices, len(prices))
	volatility := CalculateStdDev(prices) / mean * 100

	atr := CalculateATR(samples, 14)
	atrPercent := atr / price * 100
	if atrPercent < scalpMinATRPercent {
		return Hold(pair, fmt.Sprintf("scalping: ATR %.3f%% below tradeable floor", atrPercent))
	}

	// Entry threshold widens with volatility so a single ATR-sized wiggle
	// does not trigger entries in choppy regimes.
	threshold := math.Max(scalpBaseThreshold, 0.3*atrPercent)
	deltaPct := (price - shortAvg) / shortAvg * 100

	var action Action
	switch {
	case deltaPct <= -threshold && volatility > scalpMinVolatility:
		action = ActionBuy
	case deltaPct >= threshold && volatility > scalpMinVolatility:
		action = ActionSell
	default:
		return Hold(pair, fmt.Sprintf("scalping: move %.3f%% inside threshold %.3f%%", deltaPct, threshold))
	}

	confidence := 0.5
	rsi := CalculateRSI(prices)
	macd := CalculateMACD(prices)
	volume := DetectVolumeAnomaly(samples)

	if volume.Abnormal {
		if (action == ActionBuy && volume.Direction == VolumeBullish) ||
			(action == ActionSell && volume.Direction == VolumeBearish) {
			confidence += 0.10
		}
	}
	if (action == ActionBuy && rsi < 40) || (action == ActionSell && rsi > 60) {
		confidence += 0.10
	}
	// MACD about to cross its signal line suggests the move is turning
	if macd.MACD != 0 && math.Abs(macd.Histogram) < math.Abs(macd.MACD)*0.1 {
		confidence += 0.05
	}
	if atrPercent > 1.0 {
		confidence += 0.05
	}

	return Signal{
		Action:     action,
		Pair:       pair,
		Confidence: capConfidence(confidence),
		Reason: fmt.Sprintf("scalping: %.3f%% from short avg (threshold %.3f%%, ATR %.3f%%, vol %.3f%%)",
			deltaPct, threshold, atrPercent, volatility),
	}
}
