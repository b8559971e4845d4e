// Package updater guards the broker's rate-limited order-update endpoint
// against a fast-moving price feed. Every stop-loss/take-profit change flows
// through one Throttled instance, which enforces a per-order throttle window,
// suppresses near-duplicate values, and retries transport failures with
// backoff. At most one update commits per order per window, and a commit
// happens if and only if the broker call succeeds.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"trademgr/internal/domain"
)

// Outcome classifies one Apply call. Throttled and duplicate are deliberate
// no-ops, distinguishable from failures in logs and metrics.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeThrottled Outcome = "throttled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

const (
	// DefaultWindow is the minimum time between two committed updates for the
	// same order. HFT deployments may configure this down to ~1s.
	DefaultWindow = 10 * time.Second

	// DefaultEpsilon is the duplicate-suppression tolerance: a proposed value
	// this close to the last committed value is dropped.
	DefaultEpsilon = 0.01
)

type fieldKey struct {
	orderID string
	field   domain.AdjustmentField
}

// Throttled wraps a broker OrderUpdater with throttling, duplicate
// suppression, and retry. It is safe for concurrent use.
type Throttled struct {
	broker  domain.OrderUpdater
	window  time.Duration
	epsilon float64
	retry   RetryPolicy
	logger  *slog.Logger

	mu         sync.Mutex
	lastCommit map[string]time.Time   // per order: last successful update
	lastValue  map[fieldKey]float64   // per order+field: last committed value
	inflight   map[string]*sync.Mutex // per order: serializes check through record

	now func() time.Time
}

// Config tunes a Throttled updater. Zero values fall back to defaults.
type Config struct {
	Window  time.Duration
	Epsilon float64
	Retry   RetryPolicy
}

// NewThrottled creates a throttled updater around the given broker.
func NewThrottled(broker domain.OrderUpdater, cfg Config, logger *slog.Logger) *Throttled {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Throttled{
		broker:     broker,
		window:     cfg.Window,
		epsilon:    cfg.Epsilon,
		retry:      cfg.Retry,
		logger:     logger.With(slog.String("component", "order_updater")),
		lastCommit: make(map[string]time.Time),
		lastValue:  make(map[fieldKey]float64),
		inflight:   make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// orderLock returns the in-flight lock for an order, creating it on first use.
func (t *Throttled) orderLock(orderID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.inflight[orderID]
	if !ok {
		l = &sync.Mutex{}
		t.inflight[orderID] = l
	}
	return l
}

// Apply pushes one stop-loss or take-profit value to the broker. It returns
// OutcomeThrottled/OutcomeDuplicate without touching the broker when the
// guards reject the proposal, OutcomeFailed with the underlying error when
// retries are exhausted, and OutcomeCommitted after the broker accepts; only
// then are the throttle timestamp and committed value recorded.
func (t *Throttled) Apply(ctx context.Context, pos *domain.PositionState, field domain.AdjustmentField, value float64) (Outcome, error) {
	// Hold the order's in-flight lock across the whole check, broker call and
	// record sequence, so two overlapping calls for the same order cannot both
	// pass the throttle check and both commit within one window.
	lock := t.orderLock(pos.OrderID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	now := t.now()
	if last, ok := t.lastCommit[pos.OrderID]; ok && now.Sub(last) < t.window {
		t.mu.Unlock()
		t.logger.DebugContext(ctx, "update throttled",
			slog.String("order_id", pos.OrderID),
			slog.String("field", string(field)),
			slog.Duration("window", t.window),
		)
		return OutcomeThrottled, nil
	}
	if prev, ok := t.lastValue[fieldKey{pos.OrderID, field}]; ok && math.Abs(prev-value) < t.epsilon {
		t.mu.Unlock()
		t.logger.DebugContext(ctx, "duplicate value suppressed",
			slog.String("order_id", pos.OrderID),
			slog.String("field", string(field)),
			slog.Float64("value", value),
		)
		return OutcomeDuplicate, nil
	}
	t.mu.Unlock()

	upd := domain.OrderUpdate{Quantity: pos.Quantity}
	switch field {
	case domain.FieldStopLoss:
		upd.StopLoss = &value
	case domain.FieldTakeProfit:
		upd.TakeProfit = &value
	default:
		return OutcomeFailed, fmt.Errorf("updater: unknown field %q", field)
	}

	err := t.retry.Do(ctx, func() error {
		return t.broker.UpdateOrder(ctx, pos.AccountID, pos.OrderID, upd)
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("updater: update order %s: %w", pos.OrderID, err)
	}

	t.mu.Lock()
	t.lastCommit[pos.OrderID] = t.now()
	t.lastValue[fieldKey{pos.OrderID, field}] = value
	t.mu.Unlock()

	return OutcomeCommitted, nil
}

// Forget drops the throttle/duplicate records for an order. Called when the
// order leaves management so a re-registered order starts clean. The in-flight
// lock is kept so a re-registered order still serializes against any update
// that was mid-flight when the order was removed.
func (t *Throttled) Forget(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastCommit, orderID)
	delete(t.lastValue, fieldKey{orderID, domain.FieldStopLoss})
	delete(t.lastValue, fieldKey{orderID, domain.FieldTakeProfit})
}
