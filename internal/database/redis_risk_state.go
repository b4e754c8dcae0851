package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kraken-trading-bot/internal/risk"
)

const (
	// riskStateKey holds the serialized daily risk state
	riskStateKey = "krakenbot:risk:daily"

	// riskStateTTL keeps stale state from surviving long outages. The
	// state resets daily anyway; 48h covers a weekend restart.
	riskStateTTL = 48 * time.Hour
)

// RedisRiskStateStore persists the daily risk state in Redis so the
// loss-limit latch survives restarts. When Redis is unavailable it falls
// back to an in-memory copy so trading continues uninterrupted.
type RedisRiskStateStore struct {
	client    *redis.Client
	logger    zerolog.Logger
	available atomic.Bool

	fallback   *risk.DailyState
	fallbackMu sync.RWMutex
}

// NewRedisRiskStateStore creates the store and probes Redis once. The client
// may be nil, leaving the store purely in-memory.
func NewRedisRiskStateStore(client *redis.Client, logger zerolog.Logger) *RedisRiskStateStore {
	s := &RedisRiskStateStore{
		client: client,
		logger: logger.With().Str("component", "risk_state_store").Logger(),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis unavailable, daily risk state is in-memory only")
		} else {
			s.available.Store(true)
		}
	}
	return s
}

// LoadDailyState returns the persisted state, or nil when none exists
func (s *RedisRiskStateStore) LoadDailyState(ctx context.Context) (*risk.DailyState, error) {
	if s.client != nil && s.available.Load() {
		data, err := s.client.Get(ctx, riskStateKey).Bytes()
		switch {
		case err == redis.Nil:
			return nil, nil
		case err != nil:
			s.available.Store(false)
			s.logger.Warn().Err(err).Msg("redis read failed, switching to in-memory fallback")
		default:
			var state risk.DailyState
			if err := json.Unmarshal(data, &state); err != nil {
				return nil, fmt.Errorf("decoding daily risk state: %w", err)
			}
			return &state, nil
		}
	}

	s.fallbackMu.RLock()
	defer s.fallbackMu.RUnlock()
	if s.fallback == nil {
		return nil, nil
	}
	state := *s.fallback
	return &state, nil
}

// SaveDailyState writes the state to Redis, always keeping the in-memory
// copy current so a Redis outage loses nothing.
func (s *RedisRiskStateStore) SaveDailyState(ctx context.Context, state *risk.DailyState) error {
	s.fallbackMu.Lock()
	copied := *state
	s.fallback = &copied
	s.fallbackMu.Unlock()

	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding daily risk state: %w", err)
	}

	if err := s.client.Set(ctx, riskStateKey, data, riskStateTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Msg("redis write failed, daily risk state held in memory")
		}
		return nil
	}
	if !s.available.Swap(true) {
		s.logger.Info().Msg("redis recovered, daily risk state persistence restored")
	}
	return nil
}
