package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kraken-trading-bot/internal/kraken"
)

// SnapshotTTL bounds how often the cache refreshes a pair against the
// exchange. Three OHLC fetches per pair per refresh add up fast under
// exchange rate limits.
const SnapshotTTL = 5 * time.Minute

// Snapshot holds one pair's candles at three resolutions
type Snapshot struct {
	Pair       string
	ShortTerm  []kraken.Candle // 5m
	MediumTerm []kraken.Candle // 1h
	LongTerm   []kraken.Candle // 4h
	LastUpdate time.Time
}

// TimeframeCache lazily refreshes per-pair multi-timeframe snapshots
type TimeframeCache struct {
	exchange kraken.Exchange
	ttl      time.Duration
	logger   zerolog.Logger
	data     map[string]*Snapshot
	mu       sync.Mutex
}

// NewTimeframeCache creates a cache backed by the given exchange
func NewTimeframeCache(exchange kraken.Exchange, logger zerolog.Logger) *TimeframeCache {
	return &TimeframeCache{
		exchange: exchange,
		ttl:      SnapshotTTL,
		logger:   logger.With().Str("component", "timeframe_cache").Logger(),
		data:     make(map[string]*Snapshot),
	}
}

// Get returns the snapshot for a pair, refreshing it when stale. A stale
// snapshot that fails to refresh is returned as-is with the fetch error so
// the caller can decide whether old data is still usable.
func (c *TimeframeCache) Get(ctx context.Context, pair string) (*Snapshot, error) {
	c.mu.Lock()
	snapshot, ok := c.data[pair]
	c.mu.Unlock()

	if ok && time.Since(snapshot.LastUpdate) < c.ttl {
		return snapshot, nil
	}

	fresh, err := c.fetch(ctx, pair)
	if err != nil {
		if ok {
			c.logger.Warn().Err(err).Str("pair", pair).Msg("refresh failed, serving stale snapshot")
			return snapshot, err
		}
		return nil, err
	}

	c.mu.Lock()
	c.data[pair] = fresh
	c.mu.Unlock()
	return fresh, nil
}

func (c *TimeframeCache) fetch(ctx context.Context, pair string) (*Snapshot, error) {
	short, err := c.exchange.GetOHLC(ctx, pair, kraken.Interval5m)
	if err != nil {
		return nil, fmt.Errorf("fetching 5m candles for %s: %w", pair, err)
	}
	medium, err := c.exchange.GetOHLC(ctx, pair, kraken.Interval1h)
	if err != nil {
		return nil, fmt.Errorf("fetching 1h candles for %s: %w", pair, err)
	}
	long, err := c.exchange.GetOHLC(ctx, pair, kraken.Interval4h)
	if err != nil {
		return nil, fmt.Errorf("fetching 4h candles for %s: %w", pair, err)
	}

	return &Snapshot{
		Pair:       pair,
		ShortTerm:  short,
		MediumTerm: medium,
		LongTerm:   long,
		LastUpdate: time.Now(),
	}, nil
}
