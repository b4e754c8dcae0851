// Package kraken talks to Kraken's spot REST API. The engine depends only
// on the Exchange interface below, so tests substitute fakes.
package kraken

import (
	"context"
	"time"
)

// Ticker represents the current market snapshot for a pair
type Ticker struct {
	Pair      string
	Last      float64
	High24h   float64
	Low24h    float64
	Volume24h float64
}

// Candle represents a single OHLC candle
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Interval is an OHLC resolution in minutes, matching Kraken's API
type Interval int

const (
	Interval5m  Interval = 5
	Interval1h  Interval = 60
	Interval4h  Interval = 240
)

// OrderSide is the order direction
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the order execution type
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
)

// OrderRequest describes an order to place
type OrderRequest struct {
	Pair          string
	Side          OrderSide
	Type          OrderType
	Volume        float64
	Price         float64 // only for limit orders
	ClientOrderID string
}

// OrderResponse is the exchange's acknowledgement of a placed order.
// An empty OrderID means the order was not accepted.
type OrderResponse struct {
	OrderID     string
	Description string
}

// Exchange is the abstract exchange collaborator.
// All calls may block on network I/O and honor context cancellation.
type Exchange interface {
	// GetBalance returns asset quantities keyed by asset code.
	GetBalance(ctx context.Context) (map[string]float64, error)

	// GetTicker returns the current ticker for a pair.
	GetTicker(ctx context.Context, pair string) (*Ticker, error)

	// GetOHLC returns candles for a pair at the given resolution,
	// ordered oldest first.
	GetOHLC(ctx context.Context, pair string, interval Interval) ([]Candle, error)

	// PlaceOrder submits an order. A response with an empty OrderID
	// must be treated as a failed placement.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an open order by id.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// MinOrderVolume returns the minimum tradeable volume for a pair.
	MinOrderVolume(pair string) float64
}
