package strategy

import (
	"fmt"
	"time"

	"kraken-trading-bot/internal/market"
)

// MomentumStrategy votes across trend-following indicators: EMA cross, RSI
// bands, MACD histogram, Bollinger %B extremes, volume anomaly direction and
// the short-horizon price trend. Four aligned buy votes with RSI below 70
// produce a buy; sells are symmetric.
type MomentumStrategy struct{}

// NewMomentumStrategy creates a momentum strategy
func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{}
}

func (s *MomentumStrategy) Name() string {
	return "momentum"
}

func (s *MomentumStrategy) CycleInterval() time.Duration {
	return 30 * time.Second
}

func (s *MomentumStrategy) Evaluate(pair string, samples []market.PriceSample) Signal {
	if len(samples) < 10 {
		return Hold(pair, "insufficient price history")
	}

	prices := market.Prices(samples)
	price := prices[len(prices)-1]

	var votes voteCount

	// EMA(10) vs EMA(20) cross, weighted by separation
	ema10 := CalculateEMA(prices, 10)
	ema20 := CalculateEMA(prices, 20)
	if ema20 > 0 {
		diffPct := (ema10 - ema20) / ema20 * 100
		switch {
		case diffPct > 0.5:
			votes.buy += 2
		case diffPct > 0:
			votes.buy++
		case diffPct < -0.5:
			votes.sell += 2
		case diffPct < 0:
			votes.sell++
		}
	}

	// RSI bands
	rsi := CalculateRSI(prices)
	switch {
	case rsi < 30:
		votes.buy += 2
	case rsi < 45:
		votes.buy++
	case rsi > 70:
		votes.sell += 2
	case rsi > 55:
		votes.sell++
	}

	// MACD histogram sign vs signal line
	macd := CalculateMACD(prices)
	if macd.Histogram > 0 {
		votes.buy++
		if macd.MACD > 0 {
			votes.buy++
		}
	} else if macd.Histogram < 0 {
		votes.sell++
		if macd.MACD < 0 {
			votes.sell++
		}
	}

	// Bollinger %B extremes
	bb := CalculateBollinger(prices, 20, 2)
	if bb.PercentB < 20 {
		votes.buy += 2
	} else if bb.PercentB > 80 {
		votes.sell += 2
	}

	// Volume anomaly direction
	volume := DetectVolumeAnomaly(samples)
	if volume.Abnormal {
		switch volume.Direction {
		case VolumeBullish:
			votes.buy++
		case VolumeBearish:
			votes.sell++
		}
	}

	// Short-horizon trend over the last 5 samples
	if len(prices) >= 5 {
		recent := prices[len(prices)-5]
		if price > recent {
			votes.buy++
		} else if price < recent {
			votes.sell++
		}
	}

	confidence := capConfidence(0.45 + 0.07*abs(votes.margin()))

	if votes.buy >= 4 && votes.buy > votes.sell && rsi < 70 {
		return Signal{
			Action:     ActionBuy,
			Pair:       pair,
			Confidence: confidence,
			Reason: fmt.Sprintf("momentum: %.0f buy vs %.0f sell votes, RSI %.1f, %%B %.1f",
				votes.buy, votes.sell, rsi, bb.PercentB),
		}
	}
	if votes.sell >= 4 && votes.sell > votes.buy && rsi > 30 {
		return Signal{
			Action:     ActionSell,
			Pair:       pair,
			Confidence: confidence,
			Reason: fmt.Sprintf("momentum: %.0f sell vs %.0f buy votes, RSI %.1f, %%B %.1f",
				votes.sell, votes.buy, rsi, bb.PercentB),
		}
	}

	return Hold(pair, fmt.Sprintf("momentum: no consensus (%.0f buy / %.0f sell)", votes.buy, votes.sell))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
