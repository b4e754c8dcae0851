// Package analysis classifies trend across timeframes and filters signals
// against the higher-timeframe picture.
package analysis

import (
	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/strategy"
)

// TrendDirection represents market trend on one timeframe
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// TrendScore holds the point score behind a trend classification
type TrendScore struct {
	Direction TrendDirection
	Score     int
}

// ClassifyTrend scores one timeframe's candles: price vs EMA(10) and
// EMA(10) vs EMA(20) each contribute ±1 or ±2 by magnitude, and the
// higher-high/lower-low structure of the last five candles contributes ±1.
// A score of +3 or more is bullish, -3 or less bearish.
func ClassifyTrend(candles []kraken.Candle) TrendScore {
	if len(candles) < 20 {
		return TrendScore{Direction: TrendNeutral}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	price := closes[len(closes)-1]

	ema10 := strategy.CalculateEMA(closes, 10)
	ema20 := strategy.CalculateEMA(closes, 20)

	score := 0

	if ema10 > 0 {
		diffPct := (price - ema10) / ema10 * 100
		switch {
		case diffPct > 1:
			score += 2
		case diffPct > 0:
			score++
		case diffPct < -1:
			score -= 2
		case diffPct < 0:
			score--
		}
	}

	if ema20 > 0 {
		diffPct := (ema10 - ema20) / ema20 * 100
		switch {
		case diffPct > 0.5:
			score += 2
		case diffPct > 0:
			score++
		case diffPct < -0.5:
			score -= 2
		case diffPct < 0:
			score--
		}
	}

	score += structureScore(candles[len(candles)-5:])

	direction := TrendNeutral
	if score >= 3 {
		direction = TrendBullish
	} else if score <= -3 {
		direction = TrendBearish
	}
	return TrendScore{Direction: direction, Score: score}
}

// structureScore counts higher highs against lower lows over a short window
func structureScore(candles []kraken.Candle) int {
	higherHighs := 0
	lowerLows := 0
	for i := 1; i < len(candles); i++ {
		if candles[i].High > candles[i-1].High {
			higherHighs++
		}
		if candles[i].Low < candles[i-1].Low {
			lowerLows++
		}
	}
	if higherHighs > lowerLows {
		return 1
	}
	if lowerLows > higherHighs {
		return -1
	}
	return 0
}

// Alignment combines the three timeframe trends into a single score in
// roughly [-1, 1]. Longer timeframes weigh more: short 1, medium 1.5, long 2.
func Alignment(short, medium, long TrendDirection) float64 {
	const totalWeight = 1 + 1.5 + 2
	sum := trendValue(short)*1 + trendValue(medium)*1.5 + trendValue(long)*2
	return sum / totalWeight
}

func trendValue(d TrendDirection) float64 {
	switch d {
	case TrendBullish:
		return 1
	case TrendBearish:
		return -1
	default:
		return 0
	}
}
