package domain

import (
	"context"
	"time"
)

// Quote is one market data observation for a symbol.
type Quote struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Price resolves the tradable price for a quote: the last trade when present,
// otherwise the bid/ask midpoint. The second return is false when the quote
// carries no usable price.
func (q Quote) Price() (float64, bool) {
	if q.Last > 0 {
		return q.Last, true
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2, true
	}
	return 0, false
}

// QuoteFetcher is the batched REST quote lookup the polling scheduler consumes.
type QuoteFetcher interface {
	// GetQuotes returns the current price per symbol. Symbols with no usable
	// price are omitted from the result.
	GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OrderUpdate is the single mutating request the runtime issues. Exactly one
// of StopLoss or TakeProfit is set per call.
type OrderUpdate struct {
	Quantity   int
	StopLoss   *float64
	TakeProfit *float64
}

// OrderUpdater pushes stop-loss/take-profit changes to the broker.
type OrderUpdater interface {
	UpdateOrder(ctx context.Context, accountID, orderID string, upd OrderUpdate) error
}

// StreamState is the market data connection lifecycle. CLOSED is terminal and
// reached only through an explicit shutdown.
type StreamState string

const (
	StreamDisconnected StreamState = "DISCONNECTED"
	StreamConnecting   StreamState = "CONNECTING"
	StreamConnected    StreamState = "CONNECTED"
	StreamReconnecting StreamState = "RECONNECTING"
	StreamClosed       StreamState = "CLOSED"
)

// QuoteHandler receives one price observation from a live stream.
type QuoteHandler func(symbol string, price float64, ts time.Time)

// QuoteStream is a persistent market data connection. Implementations must
// resubscribe to all previously subscribed symbols after an automatic
// reconnect.
type QuoteStream interface {
	Connect(ctx context.Context) error
	SubscribeQuotes(ctx context.Context, symbols []string) error
	OnQuote(h QuoteHandler)
	State() StreamState
	Close() error
}
