package domain

import (
	"context"
	"time"
)

// AdjustmentField names which bracket leg a committed adjustment moved.
type AdjustmentField string

const (
	FieldStopLoss   AdjustmentField = "stop_loss"
	FieldTakeProfit AdjustmentField = "take_profit"
)

// AdjustmentEvent records one committed stop-loss/take-profit move. Events are
// written only after the broker update succeeds, so the journal is an exact
// history of what the broker accepted.
type AdjustmentEvent struct {
	ID        string
	OrderID   string
	AccountID string
	Symbol    string
	Side      OrderSide
	Field     AdjustmentField
	OldValue  *float64
	NewValue  float64
	Price     float64 // the tick that triggered the move
	Reason    string  // e.g. "breakeven_level_2", "trailing_extremes"
	CreatedAt time.Time
}

// AdjustmentJournal persists committed adjustments. Implementations are
// best-effort side channels: the monitor logs and continues on error.
type AdjustmentJournal interface {
	Record(ctx context.Context, ev AdjustmentEvent) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AdjustmentEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceCache mirrors the latest accepted tick per symbol so other processes
// can observe what the runtime is acting on.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
