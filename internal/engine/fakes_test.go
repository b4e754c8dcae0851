package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/position"
)

// fakeExchange scripts per-pair ticker prices and records placed orders
type fakeExchange struct {
	balances     map[string]float64
	prices       map[string][]float64
	idx          map[string]int
	tickerErr    map[string]error
	candles      []kraken.Candle
	orders       []kraken.OrderRequest
	reject       bool
	minVol       float64
	balanceCalls int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balances:  map[string]float64{"ZUSD": 1000},
		prices:    make(map[string][]float64),
		idx:       make(map[string]int),
		tickerErr: make(map[string]error),
		candles:   flatCandles(25, 100),
		minVol:    0.001,
	}
}

func flatCandles(n int, price float64) []kraken.Candle {
	candles := make([]kraken.Candle, n)
	for i := range candles {
		candles[i] = kraken.Candle{
			Time:   time.Unix(int64(i*300), 0),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 100,
		}
	}
	return candles
}

func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]float64, error) {
	f.balanceCalls++
	return f.balances, nil
}

func (f *fakeExchange) GetTicker(ctx context.Context, pair string) (*kraken.Ticker, error) {
	if err := f.tickerErr[pair]; err != nil {
		return nil, err
	}
	script := f.prices[pair]
	i := f.idx[pair]
	if i >= len(script) {
		i = len(script) - 1
	}
	f.idx[pair]++
	p := script[i]
	return &kraken.Ticker{Pair: pair, Last: p, High24h: p + 1, Low24h: p - 1, Volume24h: 1000}, nil
}

func (f *fakeExchange) GetOHLC(ctx context.Context, pair string, interval kraken.Interval) ([]kraken.Candle, error) {
	return f.candles, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req *kraken.OrderRequest) (*kraken.OrderResponse, error) {
	if f.reject {
		return &kraken.OrderResponse{Description: "insufficient funds"}, nil
	}
	f.orders = append(f.orders, *req)
	return &kraken.OrderResponse{OrderID: "OTX-1", Description: "filled"}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

func (f *fakeExchange) MinOrderVolume(pair string) float64 { return f.minVol }

// fakeStore is an in-memory Store
type fakeStore struct {
	cfg         BotConfig
	positions   map[string]position.Position
	trades      []Trade
	upserts     int
	deletes     int
	configCalls int
	failUpsert  bool
}

func newFakeStore(cfg BotConfig) *fakeStore {
	return &fakeStore{cfg: cfg, positions: make(map[string]position.Position)}
}

func (f *fakeStore) GetBotConfig(ctx context.Context) (*BotConfig, error) {
	f.configCalls++
	cfg := f.cfg
	return &cfg, nil
}

func (f *fakeStore) GetOpenPositions(ctx context.Context) ([]position.Position, error) {
	out := make([]position.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpsertOpenPosition(ctx context.Context, p *position.Position) error {
	if f.failUpsert {
		return errUpsert
	}
	f.upserts++
	f.positions[p.Pair] = *p
	return nil
}

func (f *fakeStore) DeleteOpenPosition(ctx context.Context, pair string) error {
	f.deletes++
	delete(f.positions, pair)
	return nil
}

func (f *fakeStore) RecordTrade(ctx context.Context, t *Trade) error {
	f.trades = append(f.trades, *t)
	return nil
}

// fakeNotifier records deliveries. Sends happen on background goroutines,
// so reads go through the mutex and assertions poll with a deadline.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	alerts   []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) SendAlert(ctx context.Context, title, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, title+": "+text)
	return nil
}

func (f *fakeNotifier) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func (f *fakeNotifier) firstAlert() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return ""
	}
	return f.alerts[0]
}

func (f *fakeNotifier) waitForAlerts(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.alertCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d alerts, got %d", n, f.alertCount())
}
