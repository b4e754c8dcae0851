package strategy

import (
	"math"

	"kraken-trading-bot/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the simple average over the trailing window
func CalculateSMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// CalculateEMA calculates the Exponential Moving Average, seeded at the
// first element of the series. Returns 0 for empty input.
func CalculateEMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}

	multiplier := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = (p * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index over the whole series.
// Returns 50 on insufficient data and 100 when there are no losses.
func CalculateRSI(prices []float64) float64 {
	if len(prices) < 2 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	n := float64(len(prices) - 1)
	avgGain := gains / n
	avgLoss := losses / n

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates the MACD line (EMA12 - EMA26), the signal line
// (EMA9 of the MACD history) and the histogram. Returns zeros when fewer
// than 26 points are available.
func CalculateMACD(prices []float64) MACDResult {
	if len(prices) < 26 {
		return MACDResult{}
	}

	// Rebuild the MACD history so the signal line is a real EMA of it,
	// not an approximation from the current value.
	history := make([]float64, 0, len(prices)-25)
	for i := 26; i <= len(prices); i++ {
		window := prices[:i]
		history = append(history, CalculateEMA(window, 12)-CalculateEMA(window, 26))
	}

	macdLine := history[len(history)-1]
	signalLine := CalculateEMA(history, 9)

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Band values
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	PercentB float64 // position of the last price within the band, 0-100 scale
}

// CalculateBollinger calculates Bollinger Bands over the trailing window
// (mean ± multiplier·stddev) plus %B for the latest price. %B is not
// clamped here; downstream thresholds decide what counts as extreme.
func CalculateBollinger(prices []float64, period int, multiplier float64) BollingerResult {
	if len(prices) == 0 {
		return BollingerResult{PercentB: 50}
	}
	if period > len(prices) {
		period = len(prices)
	}

	window := prices[len(prices)-period:]
	middle := CalculateSMA(window, period)

	variance := 0.0
	for _, p := range window {
		diff := p - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	upper := middle + (stdDev * multiplier)
	lower := middle - (stdDev * multiplier)

	percentB := 50.0
	if upper != lower {
		last := prices[len(prices)-1]
		percentB = (last - lower) / (upper - lower) * 100
	}

	return BollingerResult{
		Upper:    upper,
		Middle:   middle,
		Lower:    lower,
		PercentB: percentB,
	}
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates the Average True Range over the trailing window.
// The previous sample's price stands in for the previous close. Returns 0
// when fewer than period+1 samples are available.
func CalculateATR(samples []market.PriceSample, period int) float64 {
	if len(samples) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(samples) - period; i < len(samples); i++ {
		high := samples[i].High
		low := samples[i].Low
		prevClose := samples[i-1].Price

		tr := math.Max(
			high-low,
			math.Max(
				math.Abs(high-prevClose),
				math.Abs(low-prevClose),
			),
		)
		trSum += tr
	}

	return trSum / float64(period)
}

// ============================================================================
// VOLUME ANOMALY
// ============================================================================

// VolumeDirection indicates which way an abnormal volume burst points
type VolumeDirection string

const (
	VolumeBullish VolumeDirection = "bullish"
	VolumeBearish VolumeDirection = "bearish"
	VolumeNeutral VolumeDirection = "neutral"
)

// VolumeAnomaly describes how the latest volume compares to its history
type VolumeAnomaly struct {
	Abnormal  bool
	Ratio     float64
	Direction VolumeDirection
}

// DetectVolumeAnomaly compares the latest volume against the average of all
// prior volumes. Abnormal when the ratio exceeds 2.0 or drops below 0.3;
// direction follows the sign of the latest price change. Neutral on fewer
// than 10 samples or a non-finite ratio.
func DetectVolumeAnomaly(samples []market.PriceSample) VolumeAnomaly {
	neutral := VolumeAnomaly{Ratio: 1, Direction: VolumeNeutral}
	if len(samples) < 10 {
		return neutral
	}

	priorSum := 0.0
	for _, s := range samples[:len(samples)-1] {
		priorSum += s.Volume
	}
	avgPrior := priorSum / float64(len(samples)-1)

	latest := samples[len(samples)-1]
	ratio := latest.Volume / avgPrior
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return neutral
	}

	anomaly := VolumeAnomaly{Ratio: ratio, Direction: VolumeNeutral}
	if ratio > 2.0 || ratio < 0.3 {
		anomaly.Abnormal = true
		delta := latest.Price - samples[len(samples)-2].Price
		if delta > 0 {
			anomaly.Direction = VolumeBullish
		} else if delta < 0 {
			anomaly.Direction = VolumeBearish
		}
	}

	return anomaly
}

// ============================================================================
// STATISTICS HELPERS
// ============================================================================

// CalculateStdDev calculates the population standard deviation of the series
func CalculateStdDev(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	mean := CalculateSMA(prices, len(prices))
	variance := 0.0
	for _, p := range prices {
		diff := p - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(prices)))
}
