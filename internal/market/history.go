// Package market holds recent per-pair tick samples for strategy input.
package market

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of samples retained per pair
const DefaultCapacity = 50

// PriceSample is a single tick observation taken once per cycle
type PriceSample struct {
	Price     float64
	High      float64
	Low       float64
	Volume    float64
	Timestamp time.Time
}

// History is a fixed-capacity ring buffer of price samples per trading pair.
// The engine is the only writer; reads return copies so callers can never
// mutate retained samples.
type History struct {
	capacity int
	pairs    map[string][]PriceSample
	mu       sync.RWMutex
}

// NewHistory creates a history store with the given per-pair capacity
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity: capacity,
		pairs:    make(map[string][]PriceSample),
	}
}

// Record appends a sample for a pair, evicting the oldest on overflow
func (h *History) Record(pair string, sample PriceSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	samples := append(h.pairs[pair], sample)
	if len(samples) > h.capacity {
		samples = samples[len(samples)-h.capacity:]
	}
	h.pairs[pair] = samples
}

// Samples returns a copy of the retained samples for a pair, oldest first
func (h *History) Samples(pair string) []PriceSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples := h.pairs[pair]
	out := make([]PriceSample, len(samples))
	copy(out, samples)
	return out
}

// Len returns the number of retained samples for a pair
func (h *History) Len(pair string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pairs[pair])
}

// Prices extracts the close prices from a sample slice, oldest first
func Prices(samples []PriceSample) []float64 {
	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	return prices
}
