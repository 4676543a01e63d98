package broker

import (
	"context"
	"time"

	"github.com/seojinpark/volumetrader/internal/market"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderRequest is a market order handed to the gateway. Price is the
// reference price at submission time, used by the sim gateway to fill.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity int
	Price    float64
}

// OrderResult is the gateway's response to a submitted order.
type OrderResult struct {
	BrokerOrderID string
	FilledQty     int
	FilledPrice   float64
}

// Balance is the account cash snapshot used for position sizing.
type Balance struct {
	Cash      float64
	Timestamp time.Time
}

// Candle is one daily OHLCV bar, most recent last.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// QuoteSource provides the market data the scan loop runs on. Failures
// return an error; callers treat an error as an empty result for that cycle.
type QuoteSource interface {
	// RankedSnapshot returns up to limit symbols ordered by traded volume.
	RankedSnapshot(ctx context.Context, limit int) ([]market.Snapshot, error)
	// Quote returns the current snapshot for one symbol.
	Quote(ctx context.Context, symbol string) (market.Snapshot, error)
	// ExecutionStrength returns the buy/sell pressure ratio for one symbol.
	ExecutionStrength(ctx context.Context, symbol string) (float64, error)
	// DailyCandles returns up to n recent daily bars, oldest first.
	DailyCandles(ctx context.Context, symbol string, n int) ([]Candle, error)
}

// OrderGateway submits orders and reports account state.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	AccountBalance(ctx context.Context) (Balance, error)
}
