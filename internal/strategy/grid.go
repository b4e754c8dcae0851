package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"kraken-trading-bot/internal/market"
)

// GridStrategy lays a price grid around the window midpoint with ATR-adaptive
// spacing and trades level-crossing events near the outer bands. It keeps the
// previous cycle's grid level per pair so a signal only fires when the price
// actually moves into a new level, not while it sits inside one.
type GridStrategy struct {
	lastLevels map[string]int
	seen       map[string]bool
	mu         sync.Mutex
}

// NewGridStrategy creates a grid strategy
func NewGridStrategy() *GridStrategy {
	return &GridStrategy{
		lastLevels: make(map[string]int),
		seen:       make(map[string]bool),
	}
}

func (s *GridStrategy) Name() string {
	return "grid"
}

func (s *GridStrategy) CycleInterval() time.Duration {
	return 20 * time.Second
}

const gridMinSamples = 15

func (s *GridStrategy) Evaluate(pair string, samples []market.PriceSample) Signal {
	if len(samples) < gridMinSamples {
		return Hold(pair, "insufficient price history")
	}

	prices := market.Prices(samples)
	price := prices[len(prices)-1]
	latest := samples[len(samples)-1]

	// Spacing adapts to volatility: at least 1.5 ATR, or a fifth of the
	// 24h range when that is wider.
	atr := CalculateATR(samples, 14)
	spacing := math.Max(1.5*atr, (latest.High-latest.Low)/5)
	if spacing <= 0 {
		return Hold(pair, "grid: zero spacing, flat market")
	}

	low, high := prices[0], prices[0]
	for _, p := range prices {
		if p < low {
			low = p
		}
		if p > high {
			high = p
		}
	}
	mid := (low + high) / 2

	level := int(math.Floor((price - mid) / spacing))

	s.mu.Lock()
	prevLevel, hadLevel := s.lastLevels[pair], s.seen[pair]
	s.lastLevels[pair] = level
	s.seen[pair] = true
	s.mu.Unlock()

	if !hadLevel || level == prevLevel {
		return Hold(pair, fmt.Sprintf("grid: holding level %d", level))
	}

	support := mid - 2*spacing
	resistance := mid + 2*spacing

	atrPercent := atr / price * 100
	confidence := 0.6
	if atrPercent >= 0.5 && atrPercent <= 2.0 {
		confidence += 0.10
	} else if atrPercent > 2.0 {
		confidence -= 0.10
	}

	if price <= support {
		return Signal{
			Action:     ActionBuy,
			Pair:       pair,
			Confidence: capConfidence(confidence),
			Reason: fmt.Sprintf("grid: crossed into level %d at support band %.4f (spacing %.4f)",
				level, support, spacing),
		}
	}
	if price >= resistance {
		return Signal{
			Action:     ActionSell,
			Pair:       pair,
			Confidence: capConfidence(confidence),
			Reason: fmt.Sprintf("grid: crossed into level %d at resistance band %.4f (spacing %.4f)",
				level, resistance, spacing),
		}
	}

	return Hold(pair, fmt.Sprintf("grid: level change %d -> %d inside bands", prevLevel, level))
}
