package strategy

import (
	"fmt"
	"time"

	"kraken-trading-bot/internal/market"
)

// MeanReversionStrategy trades deviations from the window mean. The z-score
// of the current price and the Bollinger %B decide the tier: an extreme
// reading (|z| > 2 or %B beyond 5/95) is a strong signal, a stretched one
// (|z| > 1.5 or %B beyond 15/85) a moderate one, anything else a hold.
type MeanReversionStrategy struct{}

// NewMeanReversionStrategy creates a mean-reversion strategy
func NewMeanReversionStrategy() *MeanReversionStrategy {
	return &MeanReversionStrategy{}
}

func (s *MeanReversionStrategy) Name() string {
	return "mean_reversion"
}

func (s *MeanReversionStrategy) CycleInterval() time.Duration {
	return 30 * time.Second
}

func (s *MeanReversionStrategy) Evaluate(pair string, samples []market.PriceSample) Signal {
	if len(samples) < 10 {
		return Hold(pair, "insufficient price history")
	}

	prices := market.Prices(samples)
	price := prices[len(prices)-1]

	mean := CalculateSMA(prices, len(prices))
	stdDev := CalculateStdDev(prices)
	if stdDev == 0 {
		return Hold(pair, "mean_reversion: flat series")
	}

	zScore := (price - mean) / stdDev
	bb := CalculateBollinger(prices, 20, 2)
	rsi := CalculateRSI(prices)
	volume := DetectVolumeAnomaly(samples)

	strongLow := zScore < -2 || bb.PercentB < 5
	strongHigh := zScore > 2 || bb.PercentB > 95
	moderateLow := zScore < -1.5 || bb.PercentB < 15
	moderateHigh := zScore > 1.5 || bb.PercentB > 85

	switch {
	case strongLow:
		confidence := 0.75
		if rsi < 25 {
			confidence += 0.10
		}
		if volume.Abnormal && volume.Direction == VolumeBullish {
			confidence += 0.05
		}
		return Signal{
			Action:     ActionBuy,
			Pair:       pair,
			Confidence: capConfidence(confidence),
			Reason:     fmt.Sprintf("mean_reversion: strong oversold (z %.2f, %%B %.1f, RSI %.1f)", zScore, bb.PercentB, rsi),
		}
	case strongHigh:
		confidence := 0.75
		if rsi > 75 {
			confidence += 0.10
		}
		if volume.Abnormal && volume.Direction == VolumeBearish {
			confidence += 0.05
		}
		return Signal{
			Action:     ActionSell,
			Pair:       pair,
			Confidence: capConfidence(confidence),
			Reason:     fmt.Sprintf("mean_reversion: strong overbought (z %.2f, %%B %.1f, RSI %.1f)", zScore, bb.PercentB, rsi),
		}
	case moderateLow:
		return Signal{
			Action:     ActionBuy,
			Pair:       pair,
			Confidence: 0.60,
			Reason:     fmt.Sprintf("mean_reversion: oversold (z %.2f, %%B %.1f)", zScore, bb.PercentB),
		}
	case moderateHigh:
		return Signal{
			Action:     ActionSell,
			Pair:       pair,
			Confidence: 0.60,
			Reason:     fmt.Sprintf("mean_reversion: overbought (z %.2f, %%B %.1f)", zScore, bb.PercentB),
		}
	}

	return Hold(pair, fmt.Sprintf("mean_reversion: within band (z %.2f)", zScore))
}
