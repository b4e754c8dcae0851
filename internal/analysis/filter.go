package analysis

import (
	"fmt"

	"kraken-trading-bot/internal/strategy"
)

// suppressedConfidence is the confidence assigned to a signal the filter
// turns into a hold
const suppressedConfidence = 0.3

// FilterResult carries the filtered signal plus the trend picture behind it
type FilterResult struct {
	Signal    strategy.Signal
	Short     TrendDirection
	Medium    TrendDirection
	Long      TrendDirection
	Alignment float64
}

// FilterSignal checks a strategy signal against the multi-timeframe trend.
// A buy fighting a bearish medium+long trend (or strongly bearish alignment)
// becomes a hold; a buy riding an aligned trend gets a confidence boost.
// Sell handling is symmetric. Hold signals pass through untouched.
func FilterSignal(sig strategy.Signal, snapshot *Snapshot) FilterResult {
	short := ClassifyTrend(snapshot.ShortTerm).Direction
	medium := ClassifyTrend(snapshot.MediumTerm).Direction
	long := ClassifyTrend(snapshot.LongTerm).Direction
	alignment := Alignment(short, medium, long)

	result := FilterResult{
		Signal:    sig,
		Short:     short,
		Medium:    medium,
		Long:      long,
		Alignment: alignment,
	}

	summary := fmt.Sprintf("MTF %s/%s/%s align %.2f", short, medium, long, alignment)

	switch sig.Action {
	case strategy.ActionBuy:
		if (medium == TrendBearish && long == TrendBearish) || alignment < -0.5 {
			result.Signal = strategy.Signal{
				Action:     strategy.ActionHold,
				Pair:       sig.Pair,
				Confidence: suppressedConfidence,
				Reason:     fmt.Sprintf("buy suppressed by bearish higher timeframes (%s)", summary),
			}
			return result
		}
		if alignment > 0.5 {
			result.Signal.Confidence = capBoost(sig.Confidence + 0.15)
		} else if long == TrendBullish {
			result.Signal.Confidence = capBoost(sig.Confidence + 0.10)
		}
	case strategy.ActionSell:
		if (medium == TrendBullish && long == TrendBullish) || alignment > 0.5 {
			result.Signal = strategy.Signal{
				Action:     strategy.ActionHold,
				Pair:       sig.Pair,
				Confidence: suppressedConfidence,
				Reason:     fmt.Sprintf("sell suppressed by bullish higher timeframes (%s)", summary),
			}
			return result
		}
		if alignment < -0.5 {
			result.Signal.Confidence = capBoost(sig.Confidence + 0.15)
		} else if long == TrendBearish {
			result.Signal.Confidence = capBoost(sig.Confidence + 0.10)
		}
	default:
		return result
	}

	result.Signal.Reason = fmt.Sprintf("%s | %s", sig.Reason, summary)
	return result
}

func capBoost(c float64) float64 {
	if c > strategy.MaxConfidence {
		return strategy.MaxConfidence
	}
	return c
}
